package marketadapter

import (
	"bytes"
	"compress/flate"
	"testing"

	"github.com/coreboth/marketrunner/internal/config"
	"github.com/coreboth/marketrunner/internal/scheduler"
)

func deflateRaw(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter: %v", err)
	}
	if _, err := w.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestBuildOKExSubscribeArgsCrossesChannelsAndSymbols(t *testing.T) {
	t.Parallel()

	got := buildOKExSubscribeArgs(config.MarketConfig{
		Symbols:  []string{"BTC/USDT"},
		Channels: []string{"orderbook", "trade"},
	})

	if len(got) != 2 || got[0].Channel != "books" || got[0].InstID != "BTC-USDT" || got[1].Channel != "trades" {
		t.Errorf("subscribe args = %+v", got)
	}
}

func TestOKExInflateRawRoundTrips(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"snapshot","data":[]}`)
	compressed := deflateRaw(t, payload)

	plain, err := inflateRaw(compressed)
	if err != nil {
		t.Fatalf("inflateRaw: %v", err)
	}
	if string(plain) != string(payload) {
		t.Errorf("inflateRaw() = %q, want %q", plain, payload)
	}
}

func TestOKExHandleBooksSnapshotThenUpdate(t *testing.T) {
	t.Parallel()

	a := NewOKExAdapter(config.MarketConfig{OrderbookLength: 10}, testBus(t), nil, scheduler.New(testLogger()), testLogger())

	snapshot := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"snapshot","data":[{"asks":[["101","1","0","1"]],"bids":[["99","1","0","1"]],"ts":"1700000000000"}]}`)
	a.dispatchChannelMessage(snapshot)

	b, ok := a.books["BTC-USDT"]
	if !ok {
		t.Fatal("expected book seeded from snapshot")
	}
	ob, err := b.Snapshot(10, 1)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(ob.Asks) != 1 || ob.Asks[0].Price != "101" {
		t.Errorf("asks after snapshot = %v", ob.Asks)
	}

	update := []byte(`{"arg":{"channel":"books","instId":"BTC-USDT"},"action":"update","data":[{"asks":[["102","2","0","1"]],"bids":[],"ts":"1700000000001"}]}`)
	a.dispatchChannelMessage(update)

	ob, err = b.Snapshot(10, 1)
	if err != nil {
		t.Fatalf("Snapshot after update: %v", err)
	}
	if len(ob.Asks) != 2 {
		t.Errorf("asks after update = %v, want 2 levels", ob.Asks)
	}
}

func TestOKExHandleTradesWithoutBroker(t *testing.T) {
	// Publishing on a never-connected bus is a warn-and-drop, so this only
	// exercises the decode-and-publish path; the published action is not
	// observed here.
	t.Parallel()

	a := NewOKExAdapter(config.MarketConfig{}, testBus(t), nil, scheduler.New(testLogger()), testLogger())
	trades := []byte(`{"arg":{"channel":"trades","instId":"BTC-USDT"},"data":[{"px":"100","sz":"1","side":"sell","ts":"1700000000000"}]}`)
	a.dispatchChannelMessage(trades)
}
