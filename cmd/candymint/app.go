// cmd/candymint/app.go
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/candymint/internal/blockchain/solbc"
	"github.com/rovshanmuradov/candymint/internal/config"
	"github.com/rovshanmuradov/candymint/internal/engine"
	"github.com/rovshanmuradov/candymint/internal/eventlistener"
	"github.com/rovshanmuradov/candymint/internal/events"
	"github.com/rovshanmuradov/candymint/internal/httpapi"
	"github.com/rovshanmuradov/candymint/internal/logger"
	"github.com/rovshanmuradov/candymint/internal/metrics"
	"github.com/rovshanmuradov/candymint/internal/notify"
	"github.com/rovshanmuradov/candymint/internal/wallet"
)

const eventBufferSize = 256

// app собирает все зависимости движка из конфигурации.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	wallet  *wallet.Wallet
	bus     *events.Bus
	center  *notify.Center
	metrics *metrics.Collector
	engine  *engine.Engine
	api     *httpapi.Server
}

func newApp(cfg *config.Config, pretty bool) (*app, error) {
	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.LogFile
	logCfg.Debug = cfg.DebugLogging
	logCfg.Pretty = pretty
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	w, err := wallet.Load(cfg.PrivateKey, cfg.KeypairPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet: %w", err)
	}

	client, err := solbc.NewClient(cfg.RPCList, cfg.RPCRetries, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create ledger client: %w", err)
	}

	bus := events.NewBus(log.Logger, eventBufferSize)
	center := notify.NewCenter(log.Logger)
	center.Attach(bus)
	if cfg.TelegramToken != "" {
		sink, err := notify.NewTelegramSink(cfg.TelegramToken, cfg.TelegramChatID, log.Logger)
		if err != nil {
			return nil, err
		}
		center.AddSink(sink)
	}
	collector := metrics.NewCollector()

	tiers := make([]engine.TierSpec, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		tiers = append(tiers, engine.TierSpec{
			Name:         t.Name,
			CandyMachine: t.CandyMachine(),
			ProgramID:    t.Program(),
		})
	}

	opts := engine.Options{
		RefreshInterval:    cfg.RefreshInterval(),
		RefreshCommitment:  rpc.CommitmentType(cfg.RefreshCommitment),
		PostMintCommitment: rpc.CommitmentType(cfg.PostMintCommitment),
		TxTimeout:          cfg.TxTimeout(),
		ConfirmPoll:        cfg.ConfirmPoll(),
		TxSizeLimit:        cfg.TxSizeLimit,
	}
	eng, err := engine.New(client, w, tiers, opts, bus, collector, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	log.Info("Engine ready",
		zap.String("wallet", w.PublicKey().String()),
		zap.String("rpc", client.Endpoint()),
		zap.Strings("tiers", eng.Tiers()))

	return &app{
		cfg:     cfg,
		log:     log,
		wallet:  w,
		bus:     bus,
		center:  center,
		metrics: collector,
		engine:  eng,
	}, nil
}

// watchAccounts refreshes a tier as soon as its candy machine account
// changes, on top of the periodic polling. No-op without ws_url.
func (a *app) watchAccounts(ctx context.Context) {
	if a.cfg.WSURL == "" {
		return
	}
	accounts := make(map[string]solana.PublicKey, len(a.cfg.Tiers))
	for _, t := range a.cfg.Tiers {
		accounts[t.Name] = t.CandyMachine()
	}
	listener := eventlistener.NewEventListener(a.cfg.WSURL, rpc.CommitmentType(a.cfg.RefreshCommitment), a.log.Logger)
	go func() {
		_ = listener.Watch(ctx, accounts, func(ch eventlistener.Change) {
			if _, err := a.engine.Refresh(ctx, ch.Name); err != nil {
				a.log.Debug("Push refresh failed", zap.String("tier", ch.Name), zap.Error(err))
			}
		})
	}()
}

// serveAPI starts the status API and /metrics when metrics_addr is set.
func (a *app) serveAPI() {
	if a.cfg.MetricsAddr == "" {
		return
	}
	a.api = httpapi.NewServer(a.cfg.MetricsAddr, a.engine, a.center, a.metrics.Handler(), a.log.Logger)
	go func() {
		if err := a.api.Start(); err != nil {
			a.log.Error("HTTP server failed", zap.Error(err))
		}
	}()
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a.engine.Close()
	if a.api != nil {
		_ = a.api.Shutdown(ctx)
	}
	if err := a.bus.Shutdown(ctx); err != nil {
		a.log.Warn("Event bus shutdown", zap.Error(err))
	}
	_ = a.log.Sync()
}
