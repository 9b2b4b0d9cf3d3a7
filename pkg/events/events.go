// Package events defines the market entities that cross the event bus
// boundary: Orderbook, Trade, Kline. Each has a verbose JSON form (long
// keys, for logs and debugging) and a compact form (single-letter keys,
// canonical on the wire). The compact form is what bus payloads carry;
// round-tripping compact -> verbose -> compact must be lossless.
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
)

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// KlineType enumerates the supported candle intervals. "kline" with no
// interval is used by exchanges that don't tag the interval on the wire.
type KlineType string

const (
	KlineUnspecified KlineType = "kline"
	Kline1m          KlineType = "kline_1m"
	Kline3m          KlineType = "kline_3m"
	Kline5m          KlineType = "kline_5m"
	Kline15m         KlineType = "kline_15m"
	Kline30m         KlineType = "kline_30m"
	Kline1h          KlineType = "kline_1h"
	Kline2h          KlineType = "kline_2h"
	Kline4h          KlineType = "kline_4h"
	Kline6h          KlineType = "kline_6h"
	Kline12h         KlineType = "kline_12h"
	Kline1d          KlineType = "kline_1d"
	Kline1w          KlineType = "kline_1w"
	Kline1M          KlineType = "kline_1M"
	Kline1y          KlineType = "kline_1y"
)

// PriceLevel is one [price, quantity] pair at a book level. Price and
// Quantity are strings to preserve the exchange's source precision —
// keying or comparing by parsed float risks float-equality bugs (spec
// design note), so order-book state keeps the original string.
type PriceLevel struct {
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
}

// Orderbook is a point-in-time top-of-book view for one (platform, symbol).
// Asks ascend by price, Bids descend by price. Invariant at publish time:
// both sides non-empty and Asks[0].Price > Bids[0].Price.
type Orderbook struct {
	Platform    string       `json:"platform"`
	Symbol      string       `json:"symbol"`
	Asks        []PriceLevel `json:"asks"`
	Bids        []PriceLevel `json:"bids"`
	TimestampMs int64        `json:"timestamp_ms"`
}

// compactOrderbook is the single-letter-key wire form: p=platform,
// s=symbol, a=asks, b=bids, t=timestamp_ms. Each level is encoded as a
// two-element [price, quantity] array rather than an object, to keep the
// compact form genuinely compact.
type compactOrderbook struct {
	P string     `json:"p"`
	S string     `json:"s"`
	A [][2]string `json:"a"`
	B [][2]string `json:"b"`
	T int64      `json:"t"`
}

func levelsToCompact(levels []PriceLevel) [][2]string {
	out := make([][2]string, len(levels))
	for i, l := range levels {
		out[i] = [2]string{l.Price, l.Quantity}
	}
	return out
}

func levelsFromCompact(raw [][2]string) []PriceLevel {
	out := make([]PriceLevel, len(raw))
	for i, l := range raw {
		out[i] = PriceLevel{Price: l[0], Quantity: l[1]}
	}
	return out
}

// MarshalCompact returns the canonical wire form of the orderbook.
func (o Orderbook) MarshalCompact() ([]byte, error) {
	return json.Marshal(compactOrderbook{
		P: o.Platform,
		S: o.Symbol,
		A: levelsToCompact(o.Asks),
		B: levelsToCompact(o.Bids),
		T: o.TimestampMs,
	})
}

// UnmarshalOrderbookCompact parses the wire form back into an Orderbook.
func UnmarshalOrderbookCompact(data []byte) (Orderbook, error) {
	var c compactOrderbook
	if err := json.Unmarshal(data, &c); err != nil {
		return Orderbook{}, fmt.Errorf("unmarshal compact orderbook: %w", err)
	}
	return Orderbook{
		Platform:    c.P,
		Symbol:      c.S,
		Asks:        levelsFromCompact(c.A),
		Bids:        levelsFromCompact(c.B),
		TimestampMs: c.T,
	}, nil
}

// Validate checks the publish-time invariants from the order book
// invariant set: both sides non-empty, length within maxLength (0 = no
// cap), and the top ask strictly above the top bid. Callers drop the
// message and log a warning instead of publishing when this returns an
// error — a crossed book indicates out-of-order delivery, not a real
// market state.
func (o Orderbook) Validate(maxLength int) error {
	if len(o.Asks) == 0 || len(o.Bids) == 0 {
		return fmt.Errorf("orderbook %s.%s: empty side", o.Platform, o.Symbol)
	}
	if maxLength > 0 {
		if len(o.Asks) > maxLength || len(o.Bids) > maxLength {
			return fmt.Errorf("orderbook %s.%s: side exceeds max length %d", o.Platform, o.Symbol, maxLength)
		}
	}
	topAsk, err := parseFloat(o.Asks[0].Price)
	if err != nil {
		return fmt.Errorf("orderbook %s.%s: bad ask price: %w", o.Platform, o.Symbol, err)
	}
	topBid, err := parseFloat(o.Bids[0].Price)
	if err != nil {
		return fmt.Errorf("orderbook %s.%s: bad bid price: %w", o.Platform, o.Symbol, err)
	}
	if topAsk <= topBid {
		return fmt.Errorf("orderbook %s.%s: crossed book ask=%v bid=%v", o.Platform, o.Symbol, topAsk, topBid)
	}
	return nil
}

// Action is BUY or SELL, shared by Trade and order-side fields elsewhere.
type Action string

const (
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// Trade is a single executed trade print for (platform, symbol).
type Trade struct {
	Platform    string `json:"platform"`
	Symbol      string `json:"symbol"`
	Action      Action `json:"action"`
	Price       string `json:"price"`
	Quantity    string `json:"quantity"`
	TimestampMs int64  `json:"timestamp_ms"`
}

type compactTrade struct {
	P string `json:"p"`
	S string `json:"s"`
	A string `json:"a"`
	X string `json:"x"` // price
	Q string `json:"q"` // quantity
	T int64  `json:"t"`
}

// MarshalCompact returns the canonical wire form of the trade.
func (tr Trade) MarshalCompact() ([]byte, error) {
	return json.Marshal(compactTrade{
		P: tr.Platform,
		S: tr.Symbol,
		A: string(tr.Action),
		X: tr.Price,
		Q: tr.Quantity,
		T: tr.TimestampMs,
	})
}

// UnmarshalTradeCompact parses the wire form back into a Trade.
func UnmarshalTradeCompact(data []byte) (Trade, error) {
	var c compactTrade
	if err := json.Unmarshal(data, &c); err != nil {
		return Trade{}, fmt.Errorf("unmarshal compact trade: %w", err)
	}
	return Trade{
		Platform:    c.P,
		Symbol:      c.S,
		Action:      Action(c.A),
		Price:       c.X,
		Quantity:    c.Q,
		TimestampMs: c.T,
	}, nil
}

// Kline is a single candle for (platform, symbol, kline_type).
type Kline struct {
	Platform    string    `json:"platform"`
	Symbol      string    `json:"symbol"`
	Open        string    `json:"open"`
	High        string    `json:"high"`
	Low         string    `json:"low"`
	Close       string    `json:"close"`
	Volume      string    `json:"volume"`
	TimestampMs int64     `json:"timestamp_ms"`
	KlineType   KlineType `json:"kline_type"`
}

type compactKline struct {
	P string `json:"p"`
	S string `json:"s"`
	O string `json:"o"`
	H string `json:"h"`
	L string `json:"l"`
	C string `json:"c"`
	V string `json:"v"`
	T int64  `json:"t"`
	K string `json:"k"`
}

// MarshalCompact returns the canonical wire form of the kline.
func (k Kline) MarshalCompact() ([]byte, error) {
	return json.Marshal(compactKline{
		P: k.Platform,
		S: k.Symbol,
		O: k.Open,
		H: k.High,
		L: k.Low,
		C: k.Close,
		V: k.Volume,
		T: k.TimestampMs,
		K: string(k.KlineType),
	})
}

// UnmarshalKlineCompact parses the wire form back into a Kline.
func UnmarshalKlineCompact(data []byte) (Kline, error) {
	var c compactKline
	if err := json.Unmarshal(data, &c); err != nil {
		return Kline{}, fmt.Errorf("unmarshal compact kline: %w", err)
	}
	return Kline{
		Platform:    c.P,
		Symbol:      c.S,
		Open:        c.O,
		High:        c.H,
		Low:         c.L,
		Close:       c.C,
		Volume:      c.V,
		TimestampMs: c.T,
		KlineType:   KlineType(c.K),
	}, nil
}
