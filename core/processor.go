package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"promoledger/core/events"
	"promoledger/core/state"
	"promoledger/core/types"
	"promoledger/crypto"
	"promoledger/native/bank"
	"promoledger/native/common"
	"promoledger/native/promo"
	"promoledger/native/system/quotas"
	"promoledger/observability"
	telemetry "promoledger/observability/otel"
)

const (
	moduleTransfer = "transfer"
	modulePromo    = "promo"
)

var (
	// ErrDuplicateInstruction is returned for an instruction whose hash has
	// already committed.
	ErrDuplicateInstruction = errors.New("core: instruction already applied")
	// ErrUnknownInstruction is returned for a kind the processor cannot route.
	ErrUnknownInstruction = errors.New("core: unknown instruction kind")
	ErrNilInstruction     = errors.New("core: instruction must not be nil")
)

// ReceiptSink persists processed receipts.
type ReceiptSink interface {
	Append(ctx context.Context, r *types.Receipt) error
}

// ProcessorConfig carries the runtime policy applied before dispatch.
type ProcessorConfig struct {
	Pauses common.PauseView
	Quotas map[string]common.Quota
}

// Processor applies signed instructions to ledger state one at a time. Each
// instruction either commits every write it staged, or nothing at all and
// yields a failed receipt.
type Processor struct {
	mu       sync.Mutex
	state    *state.Manager
	engine   *promo.Engine
	clock    *Clock
	quotas   *quotas.Store
	cfg      ProcessorConfig
	receipts ReceiptSink
	stream   *EventStream
	logger   *slog.Logger
	tracer   trace.Tracer
}

// NewProcessor wires a processor over manager and engine. The engine's state
// is pointed at manager.
func NewProcessor(manager *state.Manager, engine *promo.Engine, clock *Clock, cfg ProcessorConfig) *Processor {
	if clock == nil {
		clock = NewClock(nil)
	}
	if cfg.Pauses == nil {
		cfg.Pauses = common.NewPauseSet(nil)
	}
	engine.SetState(manager)
	return &Processor{
		state:  manager,
		engine: engine,
		clock:  clock,
		quotas: quotas.NewStore(manager),
		cfg:    cfg,
		logger: slog.Default(),
		tracer: telemetry.Tracer("promoledger/core"),
	}
}

// SetReceiptSink configures where receipts are persisted. Nil disables it.
func (p *Processor) SetReceiptSink(sink ReceiptSink) { p.receipts = sink }

// SetEventStream configures the stream that committed events are published to.
func (p *Processor) SetEventStream(stream *EventStream) { p.stream = stream }

// SetLogger overrides the structured logger.
func (p *Processor) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	p.logger = logger
}

// View runs fn while no instruction is being applied, so reads observe
// committed state only.
func (p *Processor) View(fn func() error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fn()
}

// operation is a decoded instruction ready to run against state.
type operation struct {
	module string
	spend  uint64
	run    func(signer crypto.Address, b *bank.Bank) error
}

func (p *Processor) decode(ix *types.Instruction) (*operation, error) {
	engine := p.engine
	switch ix.Kind {
	case types.IxTransfer:
		var payload types.TransferPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: moduleTransfer, spend: payload.Amount, run: func(signer crypto.Address, b *bank.Bank) error {
			return b.Transfer(signer, payload.To, payload.Amount)
		}}, nil
	case types.IxInitializePolicy, types.IxUpgradePolicy:
		var payload types.PolicyPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		upgrade := ix.Kind == types.IxUpgradePolicy
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			if upgrade {
				return engine.UpgradePolicy(signer, payload.MaxResaleBps, payload.ServiceFeeBps)
			}
			return engine.InitializePolicy(signer, payload.MaxResaleBps, payload.ServiceFeeBps)
		}}, nil
	case types.IxCreateCampaign:
		var payload types.CreateCampaignPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		params := promo.CampaignParams{
			CampaignID:          payload.CampaignID,
			DiscountBps:         payload.DiscountBps,
			ResaleBps:           payload.ResaleBps,
			ExpirationTimestamp: payload.ExpirationTimestamp,
			TotalCoupons:        payload.TotalCoupons,
			MintCost:            payload.MintCost,
			MaxDiscount:         payload.MaxDiscount,
			CategoryCode:        payload.CategoryCode,
			ProductCode:         payload.ProductCode,
			Name:                payload.Name,
			DepositAmount:       payload.DepositAmount,
			RequiresWallet:      payload.RequiresWallet,
			TargetWallet:        payload.TargetWallet,
		}
		return &operation{module: modulePromo, spend: payload.DepositAmount, run: func(signer crypto.Address, _ *bank.Bank) error {
			_, _, err := engine.CreateCampaign(signer, params)
			return err
		}}, nil
	case types.IxMintCoupon:
		var payload types.MintCouponPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			_, _, err := engine.MintCoupon(signer, payload.CampaignID, payload.CouponIndex, payload.Recipient)
			return err
		}}, nil
	case types.IxRedeemCoupon:
		var payload types.RedeemCouponPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			_, err := engine.RedeemCoupon(signer, payload.Campaign, payload.Coupon, payload.PurchaseAmount, payload.ProductCode)
			return err
		}}, nil
	case types.IxListCoupon:
		var payload types.ListCouponPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			return engine.ListCoupon(signer, payload.Campaign, payload.Coupon, payload.Price)
		}}, nil
	case types.IxBuyCoupon:
		var payload types.BuyCouponPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			return engine.BuyCoupon(signer, payload.Campaign, payload.Coupon, payload.Seller)
		}}, nil
	case types.IxTransferCoupon:
		var payload types.TransferCouponPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			return engine.TransferCoupon(signer, payload.Coupon, payload.NewOwner)
		}}, nil
	case types.IxCloseVault:
		var payload types.CloseVaultPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			_, err := engine.CloseVault(signer, payload.Campaign)
			return err
		}}, nil
	case types.IxExpireCoupon:
		var payload types.ExpireCouponPayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			return engine.ExpireCoupon(signer, payload.Campaign, payload.Coupon)
		}}, nil
	case types.IxCheckTreasuryBalance:
		var payload types.CheckTreasuryBalancePayload
		if err := ix.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return &operation{module: modulePromo, run: func(signer crypto.Address, _ *bank.Bank) error {
			_, err := engine.CheckTreasuryBalance(signer, payload.Target)
			return err
		}}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstruction, byte(ix.Kind))
	}
}

func replayKey(hash string) []byte {
	return []byte("ix/" + hash)
}

// Applied reports whether the instruction with hash has committed.
func (p *Processor) Applied(hash string) (bool, error) {
	var at uint64
	return p.state.KVGet(replayKey(hash), &at)
}

// Process authenticates, decodes and applies ix. Malformed or unauthenticated
// instructions and replays are rejected with an error and no receipt. Every
// instruction that reaches the ledger yields a receipt, failed or not.
func (p *Processor) Process(ctx context.Context, ix *types.Instruction) (*types.Receipt, error) {
	if ix == nil {
		return nil, ErrNilInstruction
	}
	if !ix.Kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownInstruction, byte(ix.Kind))
	}
	signer, err := ix.Signer()
	if err != nil {
		return nil, err
	}
	hash, err := ix.HashHex()
	if err != nil {
		return nil, err
	}
	op, err := p.decode(ix)
	if err != nil {
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := p.tracer.Start(ctx, "promo."+ix.Kind.String(), trace.WithAttributes(
		attribute.String("promo.kind", ix.Kind.String()),
		attribute.String("promo.hash", hash),
		attribute.String("promo.signer", signer.String()),
	))
	defer span.End()

	start := time.Now()
	p.mu.Lock()
	defer p.mu.Unlock()

	applied, err := p.Applied(hash)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if applied {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateInstruction, hash)
	}

	now := p.clock.Now()
	receipt := &types.Receipt{Hash: hash, Kind: ix.Kind, Signer: signer, AppliedAt: now, Events: []types.Event{}}

	if err := common.Guard(p.cfg.Pauses, op.module); err != nil {
		observability.PromoMetrics().RecordThrottle(op.module, "paused")
		return p.finish(ctx, span, receipt, err, start)
	}
	var counters common.QuotaNow
	quota, limited := p.cfg.Quotas[op.module]
	limited = limited && quota.Enabled()
	if limited {
		counters, err = p.quotas.Check(op.module, quota, now, signer[:], op.spend)
		if err != nil {
			observability.PromoMetrics().RecordThrottle(op.module, "quota")
			return p.finish(ctx, span, receipt, err, start)
		}
	}

	recorder := events.NewRecorder()
	p.engine.SetEmitter(recorder)
	p.engine.SetNowFunc(func() int64 { return now })
	defer p.engine.SetEmitter(nil)

	snap := p.state.Snapshot()
	runErr := op.run(signer, bank.New(p.state, recorder))
	if runErr == nil {
		runErr = p.stage(hash, now, op.module, signer, limited, counters)
	}
	if runErr != nil {
		p.state.RevertToSnapshot(snap)
		p.state.Discard()
		recorder.Reset()
		return p.finish(ctx, span, receipt, runErr, start)
	}
	if err := p.state.Commit(); err != nil {
		p.state.Discard()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("commit failed", slog.String("hash", hash), slog.Any("error", err))
		return nil, fmt.Errorf("core: commit: %w", err)
	}
	receipt.Status = types.ReceiptSuccess
	receipt.Events = recorder.Flush()
	return p.finish(ctx, span, receipt, nil, start)
}

// stage writes the replay marker, clock floor and quota counters into the
// pending batch so they commit together with the instruction.
func (p *Processor) stage(hash string, now int64, module string, signer crypto.Address, limited bool, counters common.QuotaNow) error {
	if err := p.state.KVPut(replayKey(hash), uint64(now)); err != nil {
		return err
	}
	if err := p.clock.stage(p.state, now); err != nil {
		return err
	}
	if limited {
		return p.quotas.Save(module, signer[:], counters)
	}
	return nil
}

func (p *Processor) finish(ctx context.Context, span trace.Span, receipt *types.Receipt, failure error, start time.Time) (*types.Receipt, error) {
	if failure != nil {
		receipt.Status = types.ReceiptFailed
		receipt.Error = failure.Error()
		if code, name, ok := promo.ErrorCode(failure); ok {
			receipt.ErrorCode = code
			receipt.ErrorName = name
		} else {
			receipt.ErrorName = ledgerErrorName(failure)
		}
		span.SetStatus(codes.Error, receipt.Error)
		span.SetAttributes(attribute.String("promo.error", receipt.ErrorName))
	}
	observability.PromoMetrics().ObserveInstruction(receipt.Kind.String(), receipt.Succeeded(), receipt.ErrorName, time.Since(start))
	for _, evt := range receipt.Events {
		observability.Events().RecordEvent(evt.Type)
		if evt.Type == events.TypeTransfer {
			if amount, err := strconv.ParseUint(evt.Attributes["amount"], 10, 64); err == nil {
				observability.Events().RecordTransfer(evt.Attributes["channel"], amount)
			}
		}
	}

	if p.receipts != nil {
		if err := p.receipts.Append(ctx, receipt); err != nil {
			p.logger.Error("persist receipt", slog.String("hash", receipt.Hash), slog.Any("error", err))
		}
	}
	p.stream.Publish(receipt)

	attrs := []any{
		slog.String("hash", receipt.Hash),
		slog.String("kind", receipt.Kind.String()),
		slog.String("signer", receipt.Signer.String()),
		slog.String("status", string(receipt.Status)),
	}
	if failure != nil {
		attrs = append(attrs, slog.String("error", receipt.ErrorName), slog.String("reason", receipt.Error))
		p.logger.Info("instruction failed", attrs...)
	} else {
		p.logger.Debug("instruction applied", append(attrs, slog.Int("events", len(receipt.Events)))...)
	}
	return receipt, nil
}

func ledgerErrorName(err error) string {
	switch {
	case errors.Is(err, common.ErrModulePaused):
		return "ModulePaused"
	case errors.Is(err, common.ErrQuotaRequestsExceeded), errors.Is(err, common.ErrQuotaSpendExceeded), errors.Is(err, common.ErrQuotaCounterOverflow):
		return "QuotaExceeded"
	default:
		return "Internal"
	}
}
