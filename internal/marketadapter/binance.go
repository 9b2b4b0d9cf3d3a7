package marketadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreboth/marketrunner/internal/bus"
	"github.com/coreboth/marketrunner/internal/config"
	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/wsclient"
	"github.com/coreboth/marketrunner/pkg/events"
)

// PlatformBinance is the registry key and routing-key platform segment for
// Binance spot.
const PlatformBinance = "binance"

const (
	binanceDefaultWSS    = "wss://stream.binance.com:9443"
	binanceDepthRESTURL  = "https://api.binance.com/api/v3/depth"
	binanceDepthLimit    = "100"
	binanceRESTTimeout   = 10 * time.Second
)

// BinanceAdapter owns one combined-stream WS connection for Binance spot,
// seeding each symbol's book from a REST depth snapshot before applying
// incremental @depth updates, and republishing trades and normalized order
// book snapshots onto the bus.
type BinanceAdapter struct {
	cfg    config.MarketConfig
	bus    *bus.Bus
	http   *httpc.Pool
	logger *slog.Logger

	ws *wsclient.Client

	mu    sync.Mutex
	books map[string]*Book // keyed by Binance wire symbol, e.g. "BTCUSDT"
}

// NewBinanceAdapter constructs an adapter for the given market config.
// Binance's combined stream needs no application-level keepalive — gorilla's
// websocket connection answers server-sent protocol pings automatically —
// so this adapter takes no scheduler dependency.
func NewBinanceAdapter(cfg config.MarketConfig, b *bus.Bus, pool *httpc.Pool, logger *slog.Logger) *BinanceAdapter {
	return &BinanceAdapter{
		cfg:    cfg,
		bus:    b,
		http:   pool,
		logger: logger.With("component", "marketadapter", "platform", PlatformBinance),
		books:  make(map[string]*Book),
	}
}

// Start seeds every configured symbol's book via REST, then opens the
// combined WS stream subscribed to each symbol's requested channels.
func (a *BinanceAdapter) Start(ctx context.Context) error {
	for _, symbol := range a.cfg.Symbols {
		if err := a.seedBook(ctx, symbol); err != nil {
			a.logger.Error("seed book failed, depth updates for this symbol will be dropped", "symbol", symbol, "error", err)
		}
	}

	a.ws = wsclient.New(wsclient.Config{
		URL:     a.streamURL(),
		Process: a.handleMessage,
		Logger:  a.logger,
	})
	a.ws.Start(ctx)
	return nil
}

// Stop closes the WS connection.
func (a *BinanceAdapter) Stop() error {
	if a.ws == nil {
		return nil
	}
	return a.ws.Close()
}

// State reports the adapter's WS lifecycle state for the status endpoint.
func (a *BinanceAdapter) State() wsclient.State {
	if a.ws == nil {
		return wsclient.Idle
	}
	return a.ws.State()
}

// streamURL builds the combined-stream URL for channels x symbols, per
// spec's "subscribes channels x symbols on connect".
func (a *BinanceAdapter) streamURL() string {
	base := a.cfg.WSS
	if base == "" {
		base = binanceDefaultWSS
	}

	var streams []string
	for _, symbol := range a.cfg.Symbols {
		wire := strings.ToLower(ToBinanceSymbol(symbol))
		for _, ch := range a.cfg.Channels {
			switch ch {
			case "orderbook":
				streams = append(streams, wire+"@depth")
			case "trade":
				streams = append(streams, wire+"@trade")
			}
		}
	}
	return base + "/stream?streams=" + strings.Join(streams, "/")
}

func (a *BinanceAdapter) seedBook(ctx context.Context, symbol string) error {
	wire := ToBinanceSymbol(symbol)

	_, body, err := a.http.Fetch(ctx, http.MethodGet, binanceDepthRESTURL, map[string]string{
		"symbol": wire,
		"limit":  binanceDepthLimit,
	}, nil, nil, binanceRESTTimeout)
	if err != nil {
		return fmt.Errorf("fetch depth snapshot: %w", err)
	}

	asks, bids, err := parseBinanceRESTDepth(body)
	if err != nil {
		return fmt.Errorf("parse depth snapshot: %w", err)
	}

	b := NewBook(PlatformBinance, symbol)
	b.ApplySnapshot(asks, bids)

	a.mu.Lock()
	a.books[wire] = b
	a.mu.Unlock()
	return nil
}

// parseBinanceRESTDepth extracts asks/bids from the decoded REST depth
// response body (a map[string]any per httpc.Pool.Fetch's JSON decode path).
func parseBinanceRESTDepth(body any) (asks, bids []events.PriceLevel, err error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("unexpected depth response shape")
	}
	asks, err = levelsFromAny(m["asks"])
	if err != nil {
		return nil, nil, fmt.Errorf("asks: %w", err)
	}
	bids, err = levelsFromAny(m["bids"])
	if err != nil {
		return nil, nil, fmt.Errorf("bids: %w", err)
	}
	return asks, bids, nil
}

func levelsFromAny(raw any) ([]events.PriceLevel, error) {
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected array")
	}
	out := make([]events.PriceLevel, 0, len(list))
	for _, entry := range list {
		pair, ok := entry.([]any)
		if !ok || len(pair) < 2 {
			return nil, fmt.Errorf("expected [price, quantity] pair")
		}
		price, ok1 := pair[0].(string)
		qty, ok2 := pair[1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("expected string price/quantity")
		}
		out = append(out, events.PriceLevel{Price: price, Quantity: qty})
	}
	return out, nil
}

// binanceStreamEnvelope is the combined-stream wrapper Binance puts around
// every multiplexed message.
type binanceStreamEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type binanceDepthUpdate struct {
	Symbol    string     `json:"s"`
	EventTime int64      `json:"E"`
	Bids      [][2]string `json:"b"`
	Asks      [][2]string `json:"a"`
}

type binanceTradeEvent struct {
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
	BuyerMkr  bool   `json:"m"`
}

// handleMessage dispatches one already-JSON-decoded combined-stream frame.
func (a *BinanceAdapter) handleMessage(value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	var envelope binanceStreamEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Stream == "" {
		return
	}

	switch {
	case strings.HasSuffix(envelope.Stream, "@depth"):
		a.handleDepthUpdate(envelope.Data)
	case strings.HasSuffix(envelope.Stream, "@trade"):
		a.handleTrade(envelope.Data)
	}
}

func (a *BinanceAdapter) handleDepthUpdate(raw json.RawMessage) {
	var upd binanceDepthUpdate
	if err := json.Unmarshal(raw, &upd); err != nil {
		a.logger.Warn("malformed depth update, dropping", "error", err)
		return
	}

	asks := pairsToLevels(upd.Asks)
	bids := pairsToLevels(upd.Bids)

	a.mu.Lock()
	b, ok := a.books[upd.Symbol]
	a.mu.Unlock()
	if !ok {
		return
	}

	b.ApplyDelta(asks, bids)

	ob, err := b.Snapshot(a.cfg.OrderbookLength, upd.EventTime)
	if err != nil {
		a.logger.Warn("dropping crossed or invalid orderbook", "symbol", upd.Symbol, "error", err)
		return
	}
	publishOrderbook(a.bus, ob)
}

func (a *BinanceAdapter) handleTrade(raw json.RawMessage) {
	var ev binanceTradeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		a.logger.Warn("malformed trade event, dropping", "error", err)
		return
	}

	// buyerMaker=true means the resting order was a buy, so the aggressor
	// (the side this trade print reports) was a sell.
	action := events.Buy
	if ev.BuyerMkr {
		action = events.Sell
	}

	publishTrade(a.bus, events.Trade{
		Platform:    PlatformBinance,
		Symbol:      FromBinanceSymbol(ev.Symbol, symbolQuoteGuess(ev.Symbol)),
		Action:      action,
		Price:       ev.Price,
		Quantity:    ev.Quantity,
		TimestampMs: ev.TradeTime,
	})
}

func pairsToLevels(pairs [][2]string) []events.PriceLevel {
	out := make([]events.PriceLevel, len(pairs))
	for i, p := range pairs {
		out[i] = events.PriceLevel{Price: p[0], Quantity: p[1]}
	}
	return out
}

// symbolQuoteGuess recovers the quote asset Binance concatenated onto the
// base without a separator, for the handful of quote assets this runtime's
// configured markets use. Unknown suffixes fall back to the wire symbol
// unchanged via FromBinanceSymbol's own no-match passthrough.
func symbolQuoteGuess(wire string) string {
	for _, quote := range []string{"USDT", "USDC", "BUSD", "BTC", "ETH"} {
		if strings.HasSuffix(wire, quote) && len(wire) > len(quote) {
			return quote
		}
	}
	return ""
}
