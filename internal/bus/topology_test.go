package bus

import "testing"

func TestSingleSubscriberQueueFormat(t *testing.T) {
	t.Parallel()

	got := SingleSubscriberQueue("srv-1", ExchangeOrderbook, RoutingKey("binance", "BTC/USDT"))
	want := "srv-1.Orderbook.binance.BTC/USDT"
	if got != want {
		t.Errorf("SingleSubscriberQueue() = %q, want %q", got, want)
	}
}

func TestIsWildcard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want bool
	}{
		{"binance.BTC/USDT", false},
		{"binance.#", true},
		{"*.BTC/USDT", false}, // contains *, not # — still single-subscriber per spec wording
	}
	for _, tt := range tests {
		if got := IsWildcard(tt.key); got != tt.want {
			t.Errorf("IsWildcard(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
