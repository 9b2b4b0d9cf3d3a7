// Package runtime wires the process-wide event loop: config, logger, bus,
// scheduler, the configured market/trade adapters, the trade façade, and
// the status/position-persistence ambient services. Boot and shutdown
// sequencing here follows a standard boot/shutdown shape: construct
// everything, start it, block until SIGINT, tear it down in reverse order.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreboth/marketrunner/internal/bus"
	"github.com/coreboth/marketrunner/internal/config"
	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/marketadapter"
	"github.com/coreboth/marketrunner/internal/posstore"
	"github.com/coreboth/marketrunner/internal/scheduler"
	"github.com/coreboth/marketrunner/internal/statusapi"
	"github.com/coreboth/marketrunner/internal/trade"
	"github.com/coreboth/marketrunner/internal/tradeadapter"
	"github.com/coreboth/marketrunner/internal/wsclient"
)

// heartbeatStartDelay offsets the heartbeat log loop from the scheduler's
// own startup tick.
const heartbeatStartDelay = 500 * time.Millisecond

// defaultStatusPort is the status-HTTP listen port when config doesn't
// override it via the STATUS_PORT extra key.
const defaultStatusPort = 8090

// Runtime owns every long-lived subsystem for one process. New builds it
// from config; Start/Stop bracket its lifetime.
type Runtime struct {
	cfg    *config.Config
	logger *slog.Logger

	sched     *scheduler.Scheduler
	bus       *bus.Bus
	httpPool  *httpc.Pool
	posStore  *posstore.Store
	statusSrv *statusapi.Server
	facade    *trade.Facade

	mu             sync.Mutex
	marketAdapters map[string]marketadapter.Adapter
	tradeAdapters  map[string]tradeadapter.Adapter

	heartbeatLoopID int
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// New constructs every subsystem but starts nothing.
func New(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	logger = logger.With("server_id", cfg.ServerID)
	sched := scheduler.New(logger)

	// A Bus is always constructed so adapters can publish unconditionally;
	// Connect is only called when a broker is configured (bus.Publish on an
	// unconnected Bus safely warns and drops).
	busURL := ""
	if cfg.RabbitMQ != nil {
		busURL = cfg.RabbitMQ.URL()
	}
	b := bus.New(busURL, cfg.ServerID, sched, logger)

	store, err := posstore.Open(posDir(cfg))
	if err != nil {
		return nil, fmt.Errorf("open position store: %w", err)
	}

	r := &Runtime{
		cfg:            cfg,
		logger:         logger,
		sched:          sched,
		bus:            b,
		httpPool:       httpc.New(cfg.Proxy),
		posStore:       store,
		facade:         trade.New(logger),
		marketAdapters: make(map[string]marketadapter.Adapter),
		tradeAdapters:  make(map[string]tradeadapter.Adapter),
	}

	if err := r.buildMarketAdapters(); err != nil {
		return nil, err
	}
	if err := r.buildTradeAdapters(); err != nil {
		return nil, err
	}

	r.statusSrv = statusapi.NewServer(statusPort(cfg), r, logger)
	return r, nil
}

func posDir(cfg *config.Config) string {
	if v, ok := cfg.Extra("POSITION_DIR"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return "positions"
}

func statusPort(cfg *config.Config) int {
	if v, ok := cfg.Extra("STATUS_PORT"); ok {
		switch p := v.(type) {
		case int:
			return p
		case float64:
			return int(p)
		}
	}
	return defaultStatusPort
}

func (r *Runtime) buildMarketAdapters() error {
	for platform, mcfg := range r.cfg.Markets {
		a, err := marketadapter.New(platform, mcfg, r.bus, r.httpPool, r.sched, r.logger)
		if err != nil {
			return fmt.Errorf("build market adapter %s: %w", platform, err)
		}
		r.marketAdapters[platform] = a
	}
	return nil
}

func (r *Runtime) buildTradeAdapters() error {
	for _, raw := range r.cfg.Accounts {
		acct, err := tradeadapter.ParseAccount(raw)
		if err != nil {
			return fmt.Errorf("parse account: %w", err)
		}

		a, err := tradeadapter.New(acct, r.httpPool, r.sched, r.logger)
		if err != nil {
			return fmt.Errorf("build trade adapter %s: %w", acct.Platform, err)
		}
		r.tradeAdapters[acct.Platform] = a
		r.facade.RegisterAdapter(acct.Platform, a)
	}
	return nil
}

// Facade exposes the trade façade for an entrance function to submit and
// revoke orders through.
func (r *Runtime) Facade() *trade.Facade {
	return r.facade
}

// Start runs the boot sequence: connect the bus (blocking on first
// connect if configured), start the scheduler, start every adapter, start
// the heartbeat log loop, and serve the status endpoint. entrance, if
// non-nil, runs as its own goroutine once everything else is up.
func (r *Runtime) Start(ctx context.Context, entrance func(context.Context)) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if r.cfg.RabbitMQ != nil {
		if err := r.bus.Connect(ctx); err != nil {
			cancel()
			return fmt.Errorf("connect bus: %w", err)
		}
	}

	r.sched.Start(ctx)

	for platform, a := range r.marketAdapters {
		if err := a.Start(ctx); err != nil {
			r.logger.Error("market adapter start failed", "platform", platform, "error", err)
		}
	}
	for platform, a := range r.tradeAdapters {
		if err := a.Start(ctx); err != nil {
			r.logger.Error("trade adapter start failed", "platform", platform, "error", err)
		}
	}

	r.sched.CallLater(heartbeatStartDelay, r.startHeartbeat)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.statusSrv.Start(); err != nil {
			r.logger.Error("status server error", "error", err)
		}
	}()

	if entrance != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			entrance(ctx)
		}()
	}

	r.logger.Info("runtime started", "markets", len(r.marketAdapters), "trade_accounts", len(r.tradeAdapters))
	return nil
}

func (r *Runtime) startHeartbeat() {
	interval := r.cfg.Heartbeat.Interval
	if interval <= 0 {
		return
	}
	r.heartbeatLoopID = r.sched.RegisterLoop(interval, func(int, uint64) {
		r.logger.Info("heartbeat", "tick", r.sched.Tick())
	})
}

// Stop tears every subsystem down in reverse order: status server,
// adapters, scheduler, bus. Best-effort — each step's error is logged and
// the remaining shutdown steps still run.
func (r *Runtime) Stop() {
	r.logger.Info("runtime stopping")

	if r.cancel != nil {
		r.cancel()
	}

	r.persistPositions()

	if err := r.statusSrv.Stop(); err != nil {
		r.logger.Error("status server stop failed", "error", err)
	}

	if r.heartbeatLoopID != 0 {
		r.sched.UnregisterLoop(r.heartbeatLoopID)
	}

	for platform, a := range r.tradeAdapters {
		if err := a.Stop(); err != nil {
			r.logger.Error("trade adapter stop failed", "platform", platform, "error", err)
		}
	}
	for platform, a := range r.marketAdapters {
		if err := a.Stop(); err != nil {
			r.logger.Error("market adapter stop failed", "platform", platform, "error", err)
		}
	}

	r.sched.Stop()

	if err := r.bus.Close(); err != nil {
		r.logger.Error("bus close failed", "error", err)
	}

	r.wg.Wait()
	r.logger.Info("runtime stopped")
}

// --- statusapi.Provider ---

// ServerID implements statusapi.Provider.
func (r *Runtime) ServerID() string { return r.cfg.ServerID }

// BusConnected implements statusapi.Provider.
func (r *Runtime) BusConnected() bool {
	return r.bus.Connected()
}

// MarketAdapterStates implements statusapi.Provider.
func (r *Runtime) MarketAdapterStates() map[string]wsclient.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]wsclient.State, len(r.marketAdapters))
	for platform, a := range r.marketAdapters {
		out[platform] = a.State()
	}
	return out
}

// TradeAdapterStates implements statusapi.Provider.
func (r *Runtime) TradeAdapterStates() map[string]wsclient.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]wsclient.State, len(r.tradeAdapters))
	for platform, a := range r.tradeAdapters {
		out[platform] = a.State()
	}
	return out
}

// OpenOrderCount implements statusapi.Provider.
func (r *Runtime) OpenOrderCount() int {
	return len(r.facade.GetOpenOrderIDs())
}

// persistPositions snapshots the façade's aggregated positions to disk,
// so a restart can resume from the last-known inventory per adapter
// session rather than starting blind.
func (r *Runtime) persistPositions() {
	for _, pos := range r.facade.Positions() {
		if err := r.posStore.Save(pos); err != nil {
			r.logger.Error("save position failed", "platform", pos.Platform, "symbol", pos.Symbol, "error", err)
		}
	}
}
