// Package statusapi exposes a read-only HTTP view of the running
// process: bus connectivity, each exchange adapter's WS lifecycle state,
// and open-order counts. It has no control-plane actions — the runtime
// root owns startup/shutdown and order routing; this package only reports
// on them.
package statusapi

import (
	"sort"

	"github.com/coreboth/marketrunner/internal/wsclient"
)

// AdapterStatus is one market or trade adapter's reported lifecycle state.
type AdapterStatus struct {
	Platform string `json:"platform"`
	State    string `json:"state"`
}

// Snapshot is the full process-status document served at /api/snapshot.
type Snapshot struct {
	ServerID        string          `json:"server_id"`
	BusConnected    bool            `json:"bus_connected"`
	MarketAdapters  []AdapterStatus `json:"market_adapters"`
	TradeAdapters   []AdapterStatus `json:"trade_adapters"`
	OpenOrderCount  int             `json:"open_order_count"`
}

// Provider supplies the live state BuildSnapshot reads. The runtime root
// implements it by wiring in the bus, the constructed adapter registries,
// and the trade façade.
type Provider interface {
	ServerID() string
	BusConnected() bool
	MarketAdapterStates() map[string]wsclient.State
	TradeAdapterStates() map[string]wsclient.State
	OpenOrderCount() int
}

// BuildSnapshot reads the provider's current state into a Snapshot.
// Map iteration order isn't stable, so the adapter lists are sorted by
// platform name for deterministic JSON output.
func BuildSnapshot(p Provider) Snapshot {
	return Snapshot{
		ServerID:       p.ServerID(),
		BusConnected:   p.BusConnected(),
		MarketAdapters: statusList(p.MarketAdapterStates()),
		TradeAdapters:  statusList(p.TradeAdapterStates()),
		OpenOrderCount: p.OpenOrderCount(),
	}
}

func statusList(states map[string]wsclient.State) []AdapterStatus {
	out := make([]AdapterStatus, 0, len(states))
	for platform, state := range states {
		out = append(out, AdapterStatus{Platform: platform, State: state.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out
}
