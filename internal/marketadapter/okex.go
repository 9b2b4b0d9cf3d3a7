package marketadapter

import (
	"bytes"
	"compress/flate"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/coreboth/marketrunner/internal/bus"
	"github.com/coreboth/marketrunner/internal/config"
	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/scheduler"
	"github.com/coreboth/marketrunner/internal/wsclient"
	"github.com/coreboth/marketrunner/pkg/events"
)

// PlatformOKEx and PlatformOKExFutures are the registry keys and routing-key
// platform segments for OKEx spot and futures.
const (
	PlatformOKEx        = "okex"
	PlatformOKExFutures = "okex_futures"
)

const okexDefaultWSS = "wss://ws.okx.com:8443/ws/v5/public"

// okexPingIntervalTicks is the keepalive ping cadence, in 1s scheduler
// ticks: OKEx drops a public channel connection after 30s of silence.
const okexPingIntervalTicks = 20

// OKExAdapter owns one WS connection to OKEx's public channel set. OKEx
// frames arrive raw-deflate compressed on the binary path; text frames (the
// connection's own ping/pong and op acks) are handled separately.
type OKExAdapter struct {
	cfg    config.MarketConfig
	bus    *bus.Bus
	http   *httpc.Pool
	sched  *scheduler.Scheduler
	logger *slog.Logger

	ws     *wsclient.Client
	pingID int

	mu    sync.Mutex
	books map[string]*Book // keyed by OKEx wire symbol, e.g. "BTC-USDT"
}

// NewOKExAdapter constructs an adapter for the given market config.
func NewOKExAdapter(cfg config.MarketConfig, b *bus.Bus, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) *OKExAdapter {
	return &OKExAdapter{
		cfg:    cfg,
		bus:    b,
		http:   pool,
		sched:  sched,
		logger: logger.With("component", "marketadapter", "platform", PlatformOKEx),
		books:  make(map[string]*Book),
	}
}

// Start opens the WS connection; the subscribe frame is sent from the
// Connected callback once the handshake completes.
func (a *OKExAdapter) Start(ctx context.Context) error {
	url := a.cfg.WSS
	if url == "" {
		url = okexDefaultWSS
	}

	a.ws = wsclient.New(wsclient.Config{
		URL:           url,
		Connected:     a.subscribe,
		Process:       a.handleFrame,
		ProcessBinary: a.handleBinaryFrame,
		Logger:        a.logger,
	})
	a.ws.Start(ctx)

	a.pingID = a.sched.RegisterLoop(okexPingIntervalTicks, func(int, uint64) {
		if err := a.ws.Ping(); err != nil {
			a.logger.Warn("okex keepalive ping failed", "error", err)
		}
	})
	return nil
}

// Stop unregisters the keepalive loop and closes the WS connection.
func (a *OKExAdapter) Stop() error {
	if a.pingID != 0 {
		a.sched.UnregisterLoop(a.pingID)
	}
	if a.ws == nil {
		return nil
	}
	return a.ws.Close()
}

// State reports the adapter's WS lifecycle state for the status endpoint.
func (a *OKExAdapter) State() wsclient.State {
	if a.ws == nil {
		return wsclient.Idle
	}
	return a.ws.State()
}

type okexSubscribeArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okexSubscribeMessage struct {
	Op   string              `json:"op"`
	Args []okexSubscribeArg `json:"args"`
}

// buildOKExSubscribeArgs crosses every configured channel with every
// configured symbol into subscribe-frame arguments.
func buildOKExSubscribeArgs(cfg config.MarketConfig) []okexSubscribeArg {
	var args []okexSubscribeArg
	for _, symbol := range cfg.Symbols {
		wire := ToOKExSymbol(symbol)
		for _, ch := range cfg.Channels {
			switch ch {
			case "orderbook":
				args = append(args, okexSubscribeArg{Channel: "books", InstID: wire})
			case "trade":
				args = append(args, okexSubscribeArg{Channel: "trades", InstID: wire})
			}
		}
	}
	return args
}

// subscribe sends one subscribe frame covering every configured channel x
// symbol pair.
func (a *OKExAdapter) subscribe() {
	args := buildOKExSubscribeArgs(a.cfg)
	if len(args) == 0 {
		return
	}
	if err := a.ws.Send(okexSubscribeMessage{Op: "subscribe", Args: args}); err != nil {
		a.logger.Error("okex subscribe failed", "error", err)
	}
}

// handleFrame processes an already-JSON-decoded text frame: connection-level
// op acks and errors. OKEx's v5 public channels deliver data on binary
// frames (handleBinaryFrame); text frames here are acks/pings only.
func (a *OKExAdapter) handleFrame(value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	var ack struct {
		Event string `json:"event"`
		Msg   string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &ack); err != nil {
		return
	}
	if ack.Event == "error" {
		a.logger.Warn("okex channel error", "message", ack.Msg)
	}
}

// handleBinaryFrame decompresses a raw-deflate binary frame and dispatches
// the resulting JSON as a channel data message (books/trades), unlike text
// frames, which handleFrame only inspects for error events.
func (a *OKExAdapter) handleBinaryFrame(data []byte) {
	plain, err := inflateRaw(data)
	if err != nil {
		a.logger.Warn("failed to inflate okex frame, dropping", "error", err)
		return
	}
	a.dispatchChannelMessage(plain)
}

// inflateRaw decompresses a raw-deflate (no zlib/gzip header) payload, per
// OKEx's public WS compression scheme.
func inflateRaw(data []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()
	return io.ReadAll(r)
}

type okexChannelArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okexChannelMessage struct {
	Arg    okexChannelArg  `json:"arg"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

func (a *OKExAdapter) dispatchChannelMessage(plain []byte) {
	var msg okexChannelMessage
	if err := json.Unmarshal(plain, &msg); err != nil {
		a.logger.Warn("malformed okex channel message, dropping", "error", err)
		return
	}

	switch msg.Arg.Channel {
	case "books":
		a.handleBooks(msg.Arg.InstID, msg.Action, msg.Data)
	case "trades":
		a.handleTrades(msg.Arg.InstID, msg.Data)
	}
}

func (a *OKExAdapter) handleBooks(instID, action string, data json.RawMessage) {
	var entries []struct {
		Asks [][]string `json:"asks"`
		Bids [][]string `json:"bids"`
		TS   string     `json:"ts"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		a.logger.Warn("malformed okex books payload, dropping", "error", err)
		return
	}
	if len(entries) == 0 {
		return
	}
	entry := entries[0]

	asks := okexLevelsToEvents(entry.Asks)
	bids := okexLevelsToEvents(entry.Bids)

	a.mu.Lock()
	b, ok := a.books[instID]
	if !ok {
		b = NewBook(PlatformOKEx, FromOKExSymbol(instID))
		a.books[instID] = b
	}
	a.mu.Unlock()

	if action == "snapshot" {
		b.ApplySnapshot(asks, bids)
	} else {
		b.ApplyDelta(asks, bids)
	}

	ts := parseOKExTimestamp(entry.TS)
	ob, err := b.Snapshot(a.cfg.OrderbookLength, ts)
	if err != nil {
		a.logger.Warn("dropping crossed or invalid orderbook", "symbol", instID, "error", err)
		return
	}
	publishOrderbook(a.bus, ob)
}

// okexLevelsToEvents converts OKEx's [price, quantity, deprecated, orders]
// level tuples to PriceLevel, ignoring the trailing fields.
func okexLevelsToEvents(raw [][]string) []events.PriceLevel {
	out := make([]events.PriceLevel, 0, len(raw))
	for _, l := range raw {
		if len(l) < 2 {
			continue
		}
		out = append(out, events.PriceLevel{Price: l[0], Quantity: l[1]})
	}
	return out
}

func (a *OKExAdapter) handleTrades(instID string, data json.RawMessage) {
	var entries []struct {
		Px    string `json:"px"`
		Sz    string `json:"sz"`
		Side  string `json:"side"`
		Ts    string `json:"ts"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		a.logger.Warn("malformed okex trades payload, dropping", "error", err)
		return
	}

	symbol := FromOKExSymbol(instID)
	for _, e := range entries {
		action := events.Buy
		if e.Side == "sell" {
			action = events.Sell
		}
		publishTrade(a.bus, events.Trade{
			Platform:    PlatformOKEx,
			Symbol:      symbol,
			Action:      action,
			Price:       e.Px,
			Quantity:    e.Sz,
			TimestampMs: parseOKExTimestamp(e.Ts),
		})
	}
}

func parseOKExTimestamp(ts string) int64 {
	var v int64
	_, err := fmt.Sscanf(ts, "%d", &v)
	if err != nil {
		return 0
	}
	return v
}
