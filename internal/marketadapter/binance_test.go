package marketadapter

import (
	"encoding/json"
	"testing"

	"github.com/coreboth/marketrunner/internal/config"
	"github.com/coreboth/marketrunner/pkg/events"
)

func TestBinanceStreamURLBuildsChannelsCrossSymbols(t *testing.T) {
	t.Parallel()

	a := NewBinanceAdapter(config.MarketConfig{
		Symbols:  []string{"BTC/USDT", "ETH/USDT"},
		Channels: []string{"orderbook", "trade"},
	}, nil, nil, testLogger())

	url := a.streamURL()
	want := binanceDefaultWSS + "/stream?streams=btcusdt@depth/btcusdt@trade/ethusdt@depth/ethusdt@trade"
	if url != want {
		t.Errorf("streamURL() = %q, want %q", url, want)
	}
}

func TestParseBinanceRESTDepth(t *testing.T) {
	t.Parallel()

	var body any
	raw := `{"lastUpdateId": 1, "bids": [["99.5", "1.0"]], "asks": [["100.5", "2.0"]]}`
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}

	asks, bids, err := parseBinanceRESTDepth(body)
	if err != nil {
		t.Fatalf("parseBinanceRESTDepth: %v", err)
	}
	if len(asks) != 1 || asks[0].Price != "100.5" || asks[0].Quantity != "2.0" {
		t.Errorf("asks = %v", asks)
	}
	if len(bids) != 1 || bids[0].Price != "99.5" || bids[0].Quantity != "1.0" {
		t.Errorf("bids = %v", bids)
	}
}

func TestBinanceHandleDepthUpdateAppliesDeltaAndPublishes(t *testing.T) {
	t.Parallel()

	a := NewBinanceAdapter(config.MarketConfig{OrderbookLength: 10}, testBus(t), nil, testLogger())
	a.books["BTCUSDT"] = NewBook(PlatformBinance, "BTC/USDT")
	a.books["BTCUSDT"].ApplySnapshot(
		[]events.PriceLevel{{Price: "101", Quantity: "1"}},
		[]events.PriceLevel{{Price: "99", Quantity: "1"}},
	)

	a.handleDepthUpdate(json.RawMessage(`{"s":"BTCUSDT","E":1700000000000,"a":[["102","3"]],"b":[]}`))

	ob, err := a.books["BTCUSDT"].Snapshot(10, 1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(ob.Asks) != 2 {
		t.Fatalf("asks = %v, want 2 levels after delta", ob.Asks)
	}
}

func TestBinanceHandleTradeBuyerMakerWithoutBroker(t *testing.T) {
	// Publishing on a never-connected bus is a warn-and-drop, so this only
	// exercises the decode-and-publish path; the published action is not
	// observed here.
	t.Parallel()

	a := NewBinanceAdapter(config.MarketConfig{}, testBus(t), nil, testLogger())
	a.handleTrade(json.RawMessage(`{"s":"BTCUSDT","p":"100","q":"1","T":1,"m":true}`))
}
