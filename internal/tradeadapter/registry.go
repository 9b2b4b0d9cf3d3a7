package tradeadapter

import (
	"fmt"
	"log/slog"

	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/marketadapter"
	"github.com/coreboth/marketrunner/internal/scheduler"
)

// Constructor builds one platform's trade Adapter.
type Constructor func(account Account, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) Adapter

var registry = map[string]Constructor{
	marketadapter.PlatformBinance: func(account Account, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) Adapter {
		return NewBinanceAdapter(account, pool, sched, logger)
	},
	marketadapter.PlatformOKEx: func(account Account, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) Adapter {
		return NewOKExAdapter(account, pool, sched, logger)
	},
}

// New constructs the adapter registered for account.Platform. A static
// registry replaces dynamic keyword-argument construction: every
// supported exchange is a known, explicit entry rather than a name
// resolved at runtime.
func New(account Account, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) (Adapter, error) {
	ctor, ok := registry[account.Platform]
	if !ok {
		return nil, UnsupportedPlatformError(account.Platform)
	}
	return ctor(account, pool, sched, logger), nil
}
