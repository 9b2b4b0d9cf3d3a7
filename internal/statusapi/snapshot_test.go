package statusapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/coreboth/marketrunner/internal/wsclient"
)

type fakeProvider struct {
	serverID string
	connected bool
	market    map[string]wsclient.State
	trade     map[string]wsclient.State
	openCount int
}

func (p fakeProvider) ServerID() string                              { return p.serverID }
func (p fakeProvider) BusConnected() bool                             { return p.connected }
func (p fakeProvider) MarketAdapterStates() map[string]wsclient.State { return p.market }
func (p fakeProvider) TradeAdapterStates() map[string]wsclient.State  { return p.trade }
func (p fakeProvider) OpenOrderCount() int                            { return p.openCount }

func TestBuildSnapshotSortsAdaptersByPlatform(t *testing.T) {
	t.Parallel()

	p := fakeProvider{
		serverID:  "srv1",
		connected: true,
		market: map[string]wsclient.State{
			"okex":    wsclient.Open,
			"binance": wsclient.Connecting,
		},
		openCount: 3,
	}

	snap := BuildSnapshot(p)
	if snap.ServerID != "srv1" || !snap.BusConnected || snap.OpenOrderCount != 3 {
		t.Fatalf("unexpected snapshot fields: %+v", snap)
	}
	if len(snap.MarketAdapters) != 2 {
		t.Fatalf("expected 2 market adapters, got %d", len(snap.MarketAdapters))
	}
	if snap.MarketAdapters[0].Platform != "binance" || snap.MarketAdapters[1].Platform != "okex" {
		t.Errorf("expected adapters sorted by platform, got %+v", snap.MarketAdapters)
	}
	if snap.MarketAdapters[0].State != "connecting" {
		t.Errorf("State() string not propagated: %+v", snap.MarketAdapters[0])
	}
}

func TestHandleHealthReturnsOK(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	handleHealth(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleSnapshotServesProviderState(t *testing.T) {
	t.Parallel()

	p := fakeProvider{serverID: "srv2", connected: false, openCount: 0}
	logger := testLogger()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	handleSnapshot(p, logger)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var snap Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.ServerID != "srv2" || snap.BusConnected {
		t.Errorf("snapshot = %+v", snap)
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
