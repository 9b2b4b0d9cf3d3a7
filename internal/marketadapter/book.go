// Package marketadapter implements the per-exchange market-data adapters:
// one outbound WebSocket per adapter, subscribing channels × symbols on
// connect and republishing normalized Orderbook/Trade/Kline events onto
// the event bus.
package marketadapter

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/coreboth/marketrunner/pkg/events"
)

// Book reconstructs a single symbol's order book from a snapshot plus
// incremental deltas, keyed by the exchange's original price string (not
// a parsed float) to avoid float-equality bugs across repeated updates.
type Book struct {
	platform string
	symbol   string
	asks     map[string]string // price string -> quantity string
	bids     map[string]string
}

// NewBook creates an empty book for (platform, symbol).
func NewBook(platform, symbol string) *Book {
	return &Book{
		platform: platform,
		symbol:   symbol,
		asks:     make(map[string]string),
		bids:     make(map[string]string),
	}
}

// ApplySnapshot replaces the book wholesale with fresh levels.
func (b *Book) ApplySnapshot(asks, bids []events.PriceLevel) {
	b.asks = make(map[string]string, len(asks))
	b.bids = make(map[string]string, len(bids))
	for _, l := range asks {
		b.asks[l.Price] = l.Quantity
	}
	for _, l := range bids {
		b.bids[l.Price] = l.Quantity
	}
}

// ApplyDelta applies incremental changes: a level with quantity "0"
// removes the price, otherwise the new quantity replaces it.
func (b *Book) ApplyDelta(asks, bids []events.PriceLevel) {
	applySide(b.asks, asks)
	applySide(b.bids, bids)
}

func applySide(side map[string]string, deltas []events.PriceLevel) {
	for _, d := range deltas {
		if isZero(d.Quantity) {
			delete(side, d.Price)
			continue
		}
		side[d.Price] = d.Quantity
	}
}

func isZero(qty string) bool {
	v, err := strconv.ParseFloat(qty, 64)
	if err != nil {
		return false
	}
	return v == 0
}

// Snapshot produces a truncated, sorted Orderbook view: asks ascending,
// bids descending, each side capped at length (0 = uncapped), timestamped
// at timestampMs. Returns an error (book dropped, not published) if the
// top-of-book would be crossed.
func (b *Book) Snapshot(length int, timestampMs int64) (events.Orderbook, error) {
	asks := sortedLevels(b.asks, true)
	bids := sortedLevels(b.bids, false)

	if length > 0 {
		if len(asks) > length {
			asks = asks[:length]
		}
		if len(bids) > length {
			bids = bids[:length]
		}
	}

	ob := events.Orderbook{
		Platform:    b.platform,
		Symbol:      b.symbol,
		Asks:        asks,
		Bids:        bids,
		TimestampMs: timestampMs,
	}
	if err := ob.Validate(length); err != nil {
		return events.Orderbook{}, fmt.Errorf("snapshot %s.%s: %w", b.platform, b.symbol, err)
	}
	return ob, nil
}

func sortedLevels(side map[string]string, ascending bool) []events.PriceLevel {
	prices := make([]float64, 0, len(side))
	byPrice := make(map[float64]string, len(side))
	for p := range side {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			continue
		}
		prices = append(prices, v)
		byPrice[v] = p
	}

	sort.Slice(prices, func(i, j int) bool {
		if ascending {
			return prices[i] < prices[j]
		}
		return prices[i] > prices[j]
	})

	out := make([]events.PriceLevel, len(prices))
	for i, v := range prices {
		priceStr := byPrice[v]
		out[i] = events.PriceLevel{Price: priceStr, Quantity: side[priceStr]}
	}
	return out
}
