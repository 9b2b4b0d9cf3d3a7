package trade

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coreboth/marketrunner/internal/wsclient"
	"github.com/coreboth/marketrunner/pkg/events"
	"github.com/coreboth/marketrunner/pkg/order"
)

type fakeAdapter struct {
	mu       sync.Mutex
	orders   map[string]order.Order
	onUpdate func(order.Order)
	nextID   int
	canceled []string
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{orders: make(map[string]order.Order)}
}

func (f *fakeAdapter) Start(context.Context) error { return nil }
func (f *fakeAdapter) Stop() error                 { return nil }

func (f *fakeAdapter) SubmitOrder(_ context.Context, o order.Order) (order.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	o.OrderID = "fake-" + decimal.NewFromInt(int64(f.nextID)).String()
	o.Status = order.StatusSubmitted
	f.orders[o.OrderID] = o
	if f.onUpdate != nil {
		f.onUpdate(o)
	}
	return o, nil
}

func (f *fakeAdapter) CancelOrder(_ context.Context, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return errNotFound
	}
	o.Status = order.StatusCanceled
	f.orders[orderID] = o
	f.canceled = append(f.canceled, orderID)
	if f.onUpdate != nil {
		f.onUpdate(o)
	}
	return nil
}

func (f *fakeAdapter) OpenOrderIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, o := range f.orders {
		if !o.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (f *fakeAdapter) Orders() map[string]order.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]order.Order, len(f.orders))
	for k, v := range f.orders {
		out[k] = v
	}
	return out
}

func (f *fakeAdapter) SetUpdateCallback(cb func(order.Order)) {
	f.onUpdate = cb
}

func (f *fakeAdapter) State() wsclient.State { return wsclient.Open }

var errNotFound = fakeErr("order not found")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateOrderRoutesToRegisteredPlatform(t *testing.T) {
	t.Parallel()

	f := New(testLogger())
	fa := newFakeAdapter()
	f.RegisterAdapter("binance", fa)

	o := order.NewOrder("binance", "acct1", "strat1", "BTC/USDT", events.Buy, order.Limit, decimal.NewFromInt(100), decimal.NewFromInt(1))
	result, err := f.CreateOrder(context.Background(), o)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if result.OrderID == "" {
		t.Error("expected assigned OrderID")
	}
	if result.ClientOrderID == "" {
		t.Error("expected generated ClientOrderID")
	}

	ids := f.GetOpenOrderIDs()
	if len(ids) != 1 || ids[0] != result.OrderID {
		t.Errorf("GetOpenOrderIDs() = %v, want [%s]", ids, result.OrderID)
	}
}

func TestCreateOrderUnknownPlatformErrors(t *testing.T) {
	t.Parallel()

	f := New(testLogger())
	o := order.NewOrder("nonexistent", "acct1", "strat1", "BTC/USDT", events.Buy, order.Limit, decimal.NewFromInt(100), decimal.NewFromInt(1))
	if _, err := f.CreateOrder(context.Background(), o); err == nil {
		t.Fatal("expected error for unregistered platform")
	}
}

func TestRevokeOrderSingleID(t *testing.T) {
	t.Parallel()

	f := New(testLogger())
	fa := newFakeAdapter()
	f.RegisterAdapter("binance", fa)

	o := order.NewOrder("binance", "acct1", "strat1", "BTC/USDT", events.Buy, order.Limit, decimal.NewFromInt(100), decimal.NewFromInt(1))
	result, err := f.CreateOrder(context.Background(), o)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	if err := f.RevokeOrder(context.Background(), result.OrderID); err != nil {
		t.Fatalf("RevokeOrder: %v", err)
	}
	if len(f.GetOpenOrderIDs()) != 0 {
		t.Errorf("expected no open orders after revoke, got %v", f.GetOpenOrderIDs())
	}
}

func TestPositionsAggregatesFillsAcrossPartialAndFinalUpdates(t *testing.T) {
	t.Parallel()

	f := New(testLogger())
	fa := newFakeAdapter()
	f.RegisterAdapter("binance", fa)

	o := order.NewOrder("binance", "acct1", "strat1", "BTC/USDT", events.Buy, order.Limit, decimal.NewFromInt(100), decimal.NewFromInt(10))
	result, err := f.CreateOrder(context.Background(), o)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	// Simulate a partial fill push, then a full fill push, as a real
	// adapter's user-data stream would deliver them.
	partial := result
	partial.Remain = decimal.NewFromInt(6)
	partial.Status = order.StatusPartialFilled
	fa.onUpdate(partial)

	final := result
	final.Remain = decimal.NewFromInt(0)
	final.Status = order.StatusFilled
	fa.onUpdate(final)

	positions := f.Positions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 position, got %d: %+v", len(positions), positions)
	}
	if !positions[0].LongQuantity.Equal(decimal.NewFromInt(10)) {
		t.Errorf("LongQuantity = %v, want 10 (cumulative across both pushes)", positions[0].LongQuantity)
	}
}

func TestRevokeOrderNoIDsCancelsAll(t *testing.T) {
	t.Parallel()

	f := New(testLogger())
	fa := newFakeAdapter()
	f.RegisterAdapter("binance", fa)

	for i := 0; i < 3; i++ {
		o := order.NewOrder("binance", "acct1", "strat1", "BTC/USDT", events.Buy, order.Limit, decimal.NewFromInt(100), decimal.NewFromInt(1))
		if _, err := f.CreateOrder(context.Background(), o); err != nil {
			t.Fatalf("CreateOrder: %v", err)
		}
	}

	if err := f.RevokeOrder(context.Background()); err != nil {
		t.Fatalf("RevokeOrder: %v", err)
	}
	if len(f.GetOpenOrderIDs()) != 0 {
		t.Errorf("expected no open orders after revoke-all, got %v", f.GetOpenOrderIDs())
	}
	if len(fa.canceled) != 3 {
		t.Errorf("expected 3 cancellations, got %d", len(fa.canceled))
	}
}
