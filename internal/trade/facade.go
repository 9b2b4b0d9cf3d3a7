// Package trade implements the unified order façade: strategies submit and
// revoke orders through one entrypoint regardless of which exchange the
// order routes to, dispatching to a concrete tradeadapter.Adapter per
// platform and keeping a platform-agnostic view of open orders. It also
// aggregates each order's incremental fills into a per (platform, account,
// strategy, symbol) position, for the runtime root to persist across
// restarts.
package trade

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coreboth/marketrunner/internal/tradeadapter"
	"github.com/coreboth/marketrunner/pkg/events"
	"github.com/coreboth/marketrunner/pkg/order"
)

// Facade is the strategy-facing order entrypoint. It owns one
// tradeadapter.Adapter per platform and shadows each adapter's order map
// under its own lock so CreateOrder/RevokeOrder/Orders are safe to call
// concurrently from multiple strategies.
type Facade struct {
	logger *slog.Logger

	mu        sync.Mutex
	adapters  map[string]tradeadapter.Adapter
	orders    map[string]order.Order // keyed by OrderID, across all platforms
	positions map[string]order.Position // keyed by positionKey
	filled    map[string]decimal.Decimal // orderID -> cumulative filled qty seen so far
}

// New creates an empty façade. Register each platform's adapter with
// RegisterAdapter before routing orders to it.
func New(logger *slog.Logger) *Facade {
	return &Facade{
		logger:    logger.With("component", "trade"),
		adapters:  make(map[string]tradeadapter.Adapter),
		orders:    make(map[string]order.Order),
		positions: make(map[string]order.Position),
		filled:    make(map[string]decimal.Decimal),
	}
}

// RegisterAdapter wires one platform's trading connection into the façade
// and subscribes to its order-update callback to keep Orders() and the
// aggregated position book current.
func (f *Facade) RegisterAdapter(platform string, a tradeadapter.Adapter) {
	a.SetUpdateCallback(func(o order.Order) {
		f.mu.Lock()
		f.applyFill(o)
		if o.Status.Terminal() {
			delete(f.orders, o.OrderID)
			delete(f.filled, o.OrderID)
		} else {
			f.orders[o.OrderID] = o
		}
		f.mu.Unlock()
	})

	f.mu.Lock()
	f.adapters[platform] = a
	f.mu.Unlock()
}

func positionKey(platform, account, strategy, symbol string) string {
	return platform + "|" + account + "|" + strategy + "|" + symbol
}

// applyFill folds the incremental filled quantity of one order update
// into the aggregated position for its (platform, account, strategy,
// symbol). Must be called with f.mu held.
func (f *Facade) applyFill(o order.Order) {
	filledNow := o.Quantity.Sub(o.Remain)
	prior := f.filled[o.OrderID]
	delta := filledNow.Sub(prior)
	f.filled[o.OrderID] = filledNow
	if delta.IsZero() {
		return
	}

	key := positionKey(o.Platform, o.Account, o.Strategy, o.Symbol)
	pos := f.positions[key]
	pos.Platform, pos.Account, pos.Strategy, pos.Symbol = o.Platform, o.Account, o.Strategy, o.Symbol
	if o.Action == events.Buy {
		pos.LongQuantity = pos.LongQuantity.Add(delta)
	} else {
		pos.ShortQuantity = pos.ShortQuantity.Add(delta)
	}
	pos.TimestampMs = o.UtimeMs
	f.positions[key] = pos
}

// Positions returns a snapshot of every tracked (platform, account,
// strategy, symbol) position.
func (f *Facade) Positions() []order.Position {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]order.Position, 0, len(f.positions))
	for _, p := range f.positions {
		out = append(out, p)
	}
	return out
}

func (f *Facade) adapterFor(platform string) (tradeadapter.Adapter, error) {
	f.mu.Lock()
	a, ok := f.adapters[platform]
	f.mu.Unlock()
	if !ok {
		return nil, tradeadapter.UnsupportedPlatformError(platform)
	}
	return a, nil
}

// CreateOrder submits one order. A client order id is generated (dashes
// stripped UUID) when the caller doesn't supply one.
func (f *Facade) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	a, err := f.adapterFor(o.Platform)
	if err != nil {
		return order.Order{}, err
	}

	if o.ClientOrderID == "" {
		o.ClientOrderID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}
	if o.Status == "" {
		o.Status = order.StatusNone
	}

	result, err := a.SubmitOrder(ctx, o)
	if err != nil {
		return order.Order{}, fmt.Errorf("create order: %w", err)
	}

	f.mu.Lock()
	f.orders[result.OrderID] = result
	f.mu.Unlock()
	return result, nil
}

// RevokeOrder cancels orders by id, supporting 0/1/N-id call shapes:
// no ids cancels every open order across every registered platform, one id
// cancels that single order (its platform is looked up from the tracked
// order map), and multiple ids cancel each independently, collecting the
// first error encountered without aborting the remaining cancellations.
func (f *Facade) RevokeOrder(ctx context.Context, orderIDs ...string) error {
	if len(orderIDs) == 0 {
		return f.revokeAll(ctx)
	}

	var firstErr error
	for _, id := range orderIDs {
		if err := f.revokeOne(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *Facade) revokeOne(ctx context.Context, orderID string) error {
	f.mu.Lock()
	o, ok := f.orders[orderID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("revoke order: unknown order id %q", orderID)
	}

	a, err := f.adapterFor(o.Platform)
	if err != nil {
		return err
	}
	return a.CancelOrder(ctx, orderID)
}

func (f *Facade) revokeAll(ctx context.Context) error {
	f.mu.Lock()
	ids := make([]string, 0, len(f.orders))
	for id := range f.orders {
		ids = append(ids, id)
	}
	f.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := f.revokeOne(ctx, id); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetOpenOrderIDs returns the non-terminal order ids tracked across every
// registered platform.
func (f *Facade) GetOpenOrderIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.orders))
	for id, o := range f.orders {
		if !o.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Orders returns a shallow copy of the tracked order map, across every
// registered platform.
func (f *Facade) Orders() map[string]order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]order.Order, len(f.orders))
	for id, o := range f.orders {
		out[id] = o
	}
	return out
}
