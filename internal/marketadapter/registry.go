package marketadapter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/coreboth/marketrunner/internal/bus"
	"github.com/coreboth/marketrunner/internal/config"
	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/scheduler"
	"github.com/coreboth/marketrunner/internal/wsclient"
)

// Adapter is one exchange's market-data connection: it owns its own
// transport lifecycle and republishes normalized events onto the bus.
type Adapter interface {
	Start(ctx context.Context) error
	Stop() error
	// State reports the adapter's WS lifecycle state for the status endpoint.
	State() wsclient.State
}

// Constructor builds one platform's Adapter.
type Constructor func(cfg config.MarketConfig, b *bus.Bus, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) Adapter

var registry = map[string]Constructor{
	PlatformBinance: func(cfg config.MarketConfig, b *bus.Bus, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) Adapter {
		return NewBinanceAdapter(cfg, b, pool, logger)
	},
	PlatformOKEx: func(cfg config.MarketConfig, b *bus.Bus, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) Adapter {
		return NewOKExAdapter(cfg, b, pool, sched, logger)
	},
	// PlatformOKExFutures has no distinct wire protocol documented upstream;
	// it reuses the spot adapter's books/trades handling unexercised until a
	// futures-specific channel set is specified.
	PlatformOKExFutures: func(cfg config.MarketConfig, b *bus.Bus, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) Adapter {
		return NewOKExAdapter(cfg, b, pool, sched, logger)
	},
}

// New constructs the adapter registered for platform. A static registry
// replaces dynamic keyword-argument construction: every supported exchange
// is a known, explicit entry rather than a name resolved at runtime.
func New(platform string, cfg config.MarketConfig, b *bus.Bus, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) (Adapter, error) {
	ctor, ok := registry[platform]
	if !ok {
		return nil, fmt.Errorf("marketadapter: no adapter registered for platform %q", platform)
	}
	return ctor(cfg, b, pool, sched, logger), nil
}
