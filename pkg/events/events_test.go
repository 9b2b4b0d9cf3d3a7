package events

import (
	"reflect"
	"testing"
)

func TestOrderbookCompactRoundTrip(t *testing.T) {
	t.Parallel()

	ob := Orderbook{
		Platform:    "binance",
		Symbol:      "BTC/USDT",
		Asks:        []PriceLevel{{Price: "101", Quantity: "2"}, {Price: "102", Quantity: "3"}},
		Bids:        []PriceLevel{{Price: "99", Quantity: "1"}},
		TimestampMs: 1700000000000,
	}

	data, err := ob.MarshalCompact()
	if err != nil {
		t.Fatalf("MarshalCompact: %v", err)
	}

	got, err := UnmarshalOrderbookCompact(data)
	if err != nil {
		t.Fatalf("UnmarshalOrderbookCompact: %v", err)
	}
	if !reflect.DeepEqual(ob, got) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, ob)
	}
}

func TestOrderbookValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		ob      Orderbook
		maxLen  int
		wantErr bool
	}{
		{
			name: "valid",
			ob: Orderbook{
				Asks: []PriceLevel{{Price: "101"}, {Price: "102"}},
				Bids: []PriceLevel{{Price: "99"}},
			},
			maxLen: 10,
		},
		{
			name: "crossed",
			ob: Orderbook{
				Asks: []PriceLevel{{Price: "100"}},
				Bids: []PriceLevel{{Price: "100"}},
			},
			maxLen:  10,
			wantErr: true,
		},
		{
			name: "empty side",
			ob: Orderbook{
				Asks: []PriceLevel{{Price: "101"}},
			},
			maxLen:  10,
			wantErr: true,
		},
		{
			name: "too long",
			ob: Orderbook{
				Asks: []PriceLevel{{Price: "101"}, {Price: "102"}, {Price: "103"}},
				Bids: []PriceLevel{{Price: "99"}},
			},
			maxLen:  2,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ob.Validate(tt.maxLen)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTradeCompactRoundTrip(t *testing.T) {
	t.Parallel()

	tr := Trade{
		Platform:    "binance",
		Symbol:      "BTC/USDT",
		Action:      Buy,
		Price:       "50000",
		Quantity:    "0.01",
		TimestampMs: 1700000000000,
	}

	data, err := tr.MarshalCompact()
	if err != nil {
		t.Fatalf("MarshalCompact: %v", err)
	}
	got, err := UnmarshalTradeCompact(data)
	if err != nil {
		t.Fatalf("UnmarshalTradeCompact: %v", err)
	}
	if !reflect.DeepEqual(tr, got) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, tr)
	}
}

func TestKlineCompactRoundTrip(t *testing.T) {
	t.Parallel()

	k := Kline{
		Platform:    "okex",
		Symbol:      "ETH/USDT",
		Open:        "1800",
		High:        "1850",
		Low:         "1790",
		Close:       "1820",
		Volume:      "1234.5",
		TimestampMs: 1700000000000,
		KlineType:   Kline1m,
	}

	data, err := k.MarshalCompact()
	if err != nil {
		t.Fatalf("MarshalCompact: %v", err)
	}
	got, err := UnmarshalKlineCompact(data)
	if err != nil {
		t.Fatalf("UnmarshalKlineCompact: %v", err)
	}
	if !reflect.DeepEqual(k, got) {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, k)
	}
}
