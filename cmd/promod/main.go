package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"promoledger/config"
	"promoledger/core"
	"promoledger/core/state"
	"promoledger/native/common"
	"promoledger/observability/logging"
	telemetry "promoledger/observability/otel"
	"promoledger/rpc"
)

const (
	genesisPathEnv  = "PROMO_GENESIS"
	shutdownTimeout = 10 * time.Second
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	genesisFlag := flag.String("genesis", "", "Path to a genesis JSON file (overrides PROMO_GENESIS and config GenesisFile)")
	allowMigrateFlag := flag.Bool("allow-migrate", false, "Allow starting with a mismatched state schema (manual migrations only)")
	exportPath := flag.String("export-redemptions", "", "Write every recorded redemption to this parquet file and exit")
	flag.Parse()

	if err := run(*configFile, *genesisFlag, *allowMigrateFlag, *exportPath); err != nil {
		fmt.Fprintf(os.Stderr, "promod: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, genesisFlag string, allowMigrate bool, exportPath string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup("promod", cfg.Environment, logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "promod",
		Environment: cfg.Environment,
		Version:     version,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", slog.Any("error", err))
		}
	}()

	opts, err := nodeOptions(cfg, resolveGenesisPath(genesisFlag, cfg.GenesisFile, os.LookupEnv), allowMigrate || cfg.AllowMigrate, logger)
	if err != nil {
		return err
	}
	node, err := core.NewNode(opts)
	if err != nil {
		return fmt.Errorf("start node: %w", err)
	}
	logger.Info("node started",
		logging.MaskField("datadir", cfg.DataDir),
		logging.MaskField("treasury", opts.Treasury.String()),
		logging.MaskField("keystore", cfg.OperatorKeystorePath),
		logging.MaskField("jwtSecret", cfg.RPC.JWTSecret),
		slog.Int64("clock", node.Now()),
	)
	defer func() {
		if err := node.Close(); err != nil {
			logger.Warn("close node", slog.Any("error", err))
		}
	}()

	if path := strings.TrimSpace(exportPath); path != "" {
		count, err := node.ExportRedemptions(ctx, path)
		if err != nil {
			return fmt.Errorf("export redemptions: %w", err)
		}
		logger.Info("redemptions exported", slog.String("path", path), slog.Int("rows", count))
		return nil
	}

	server := rpc.NewServer(node, logger.With(slog.String("component", "rpc")), rpc.ServerConfig{
		JWTSecret:         cfg.RPC.JWTSecret,
		JWTIssuer:         cfg.RPC.JWTIssuer,
		RequestsPerMinute: cfg.RPC.RequestsPerMinute,
		Burst:             cfg.RPC.Burst,
		ReadTimeout:       time.Duration(cfg.RPC.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.RPC.WriteTimeoutSeconds) * time.Second,
	})
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Start(cfg.RPCAddress)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func nodeOptions(cfg *config.Config, genesisPath string, allowMigrate bool, logger *slog.Logger) (core.Options, error) {
	treasury, err := cfg.TreasuryAddress()
	if err != nil {
		return core.Options{}, err
	}
	return core.Options{
		DataDir:      cfg.DataDir,
		GenesisPath:  genesisPath,
		Treasury:     treasury,
		Rent:         state.Rent{PerByteYear: cfg.Rent.PerByteYear, ExemptionYears: cfg.Rent.ExemptionYears},
		AllowMigrate: allowMigrate,
		Pauses:       common.NewPauseSet(cfg.Global.Pauses.Modules()),
		Quotas: map[string]common.Quota{
			config.ModulePromo:    cfg.Global.Quotas.Promo.Runtime(),
			config.ModuleTransfer: cfg.Global.Quotas.Transfer.Runtime(),
		},
		Logger: logger,
	}, nil
}

// resolveGenesisPath picks the genesis file: the flag wins, then the
// environment, then the config file.
func resolveGenesisPath(flagValue, configValue string, lookup func(string) (string, bool)) string {
	if trimmed := strings.TrimSpace(flagValue); trimmed != "" {
		return trimmed
	}
	if lookup != nil {
		if value, ok := lookup(genesisPathEnv); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(configValue)
}
