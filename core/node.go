package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"promoledger/core/genesis"
	"promoledger/core/receipts"
	"promoledger/core/state"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/common"
	"promoledger/native/promo"
	"promoledger/storage"
)

// Options configures a Node.
type Options struct {
	// DataDir holds the ledger and receipt databases. Empty keeps everything
	// in memory.
	DataDir      string
	GenesisPath  string
	Treasury     crypto.Address
	Rent         promo.RentSchedule
	AllowMigrate bool
	Pauses       common.PauseView
	Quotas       map[string]common.Quota
	Logger       *slog.Logger
	// Clock overrides the wall clock; tests use it to move time.
	Clock func() time.Time
}

// Node is the central controller, wiring storage, state, the promo engine,
// the instruction processor and the receipt log together.
type Node struct {
	db        storage.Database
	state     *state.Manager
	engine    *promo.Engine
	processor *Processor
	receipts  *receipts.Store
	stream    *EventStream
	clock     *Clock
	logger    *slog.Logger
}

// NewNode opens the stores, applies genesis when configured, and returns a
// node ready to accept instructions.
func NewNode(opts Options) (*Node, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Treasury.IsZero() {
		return nil, fmt.Errorf("node: treasury address must be configured")
	}

	var (
		db          storage.Database
		receiptPath = ":memory:"
	)
	if dir := strings.TrimSpace(opts.DataDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("node: create data dir: %w", err)
		}
		ldb, err := storage.NewLevelDB(filepath.Join(dir, "ledger"))
		if err != nil {
			return nil, fmt.Errorf("node: open ledger: %w", err)
		}
		db = ldb
		receiptPath = filepath.Join(dir, "receipts.db")
	} else {
		db = storage.NewMemDB()
	}

	n, err := newNode(db, receiptPath, opts, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return n, nil
}

func newNode(db storage.Database, receiptPath string, opts Options, logger *slog.Logger) (*Node, error) {
	manager := state.NewManager(db)
	if err := state.EnsureStateVersion(manager, opts.AllowMigrate); err != nil {
		return nil, err
	}

	engine := promo.NewEngine()
	engine.SetState(manager)
	engine.SetTreasury(opts.Treasury)
	engine.SetRent(opts.Rent)

	if path := strings.TrimSpace(opts.GenesisPath); path != "" {
		spec, err := genesis.LoadGenesisSpec(path)
		if err != nil {
			return nil, err
		}
		applied, err := genesis.Apply(spec, manager, engine)
		if err != nil {
			return nil, err
		}
		if applied {
			logger.Info("genesis applied", slog.Time("genesis_time", spec.GenesisTimestamp()), slog.Int("allocations", len(spec.Balances())))
		}
	} else if _, ok, err := manager.StateVersion(); err != nil {
		return nil, err
	} else if !ok {
		if err := manager.SetStateVersion(state.StateVersion); err != nil {
			return nil, err
		}
		if err := manager.Commit(); err != nil {
			return nil, err
		}
	}

	clock := NewClock(opts.Clock)
	if err := clock.Load(manager); err != nil {
		return nil, fmt.Errorf("node: load clock: %w", err)
	}

	store, err := receipts.Open(receiptPath)
	if err != nil {
		return nil, fmt.Errorf("node: open receipts: %w", err)
	}

	stream := NewEventStream()
	processor := NewProcessor(manager, engine, clock, ProcessorConfig{Pauses: opts.Pauses, Quotas: opts.Quotas})
	processor.SetReceiptSink(store)
	processor.SetEventStream(stream)
	processor.SetLogger(logger.With(slog.String("component", "processor")))

	logger.Info("node ready", slog.String("address", opts.Treasury.String()), slog.Int64("clock_floor", clock.Last()))
	return &Node{
		db:        db,
		state:     manager,
		engine:    engine,
		processor: processor,
		receipts:  store,
		stream:    stream,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Close releases the stores.
func (n *Node) Close() error {
	if n == nil {
		return nil
	}
	var err error
	if n.receipts != nil {
		err = n.receipts.Close()
	}
	if n.db != nil {
		n.db.Close()
	}
	return err
}

// Submit applies a signed instruction.
func (n *Node) Submit(ctx context.Context, ix *types.Instruction) (*types.Receipt, error) {
	return n.processor.Process(ctx, ix)
}

// Receipt returns the stored receipt for an instruction hash.
func (n *Node) Receipt(ctx context.Context, hash string) (*types.Receipt, error) {
	return n.receipts.Get(ctx, strings.ToLower(strings.TrimSpace(hash)))
}

// Events pages through the receipt log's event history.
func (n *Node) Events(ctx context.Context, eventType string, afterID int64, limit int) ([]receipts.StoredEvent, error) {
	return n.receipts.Events(ctx, eventType, afterID, limit)
}

// SubscribeEvents streams committed events published after cursor.
func (n *Node) SubscribeEvents(ctx context.Context, cursor string) (<-chan StreamEvent, func(), []StreamEvent, error) {
	return n.stream.Subscribe(ctx, cursor)
}

// ExportRedemptions writes every redemption on record to a parquet file.
func (n *Node) ExportRedemptions(ctx context.Context, path string) (int, error) {
	return n.receipts.ExportRedemptions(ctx, path)
}

// Treasury returns the configured fee account.
func (n *Node) Treasury() crypto.Address { return n.engine.Treasury() }

// Now returns the ledger clock.
func (n *Node) Now() int64 { return n.clock.Now() }
