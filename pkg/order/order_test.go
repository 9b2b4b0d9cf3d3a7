package order

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/coreboth/marketrunner/pkg/events"
)

func TestNewOrderDefaultsRemainToQuantity(t *testing.T) {
	t.Parallel()

	qty := decimal.NewFromFloat(1.5)
	o := NewOrder("binance", "acct", "strat", "BTC/USDT", events.Buy, Limit, decimal.NewFromInt(50000), qty)

	if !o.Remain.Equal(qty) {
		t.Errorf("Remain = %s, want %s", o.Remain, qty)
	}
	if o.Status != StatusNone {
		t.Errorf("Status = %s, want %s", o.Status, StatusNone)
	}
}

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status Status
		want   bool
	}{
		{StatusNone, false},
		{StatusSubmitted, false},
		{StatusPartialFilled, false},
		{StatusFilled, true},
		{StatusCanceled, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.want {
			t.Errorf("Status(%s).Terminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}
