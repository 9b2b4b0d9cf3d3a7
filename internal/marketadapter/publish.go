package marketadapter

import (
	"github.com/coreboth/marketrunner/internal/bus"
	"github.com/coreboth/marketrunner/pkg/events"
)

// publishOrderbook marshals ob to its compact wire form and publishes it on
// the Orderbook exchange under the (platform, symbol) routing key.
func publishOrderbook(b *bus.Bus, ob events.Orderbook) {
	data, err := ob.MarshalCompact()
	if err != nil {
		return
	}
	b.Publish(bus.Event{
		Name:       "orderbook",
		Exchange:   bus.ExchangeOrderbook,
		RoutingKey: bus.RoutingKey(ob.Platform, ob.Symbol),
		Data:       data,
	})
}

// publishTrade marshals tr to its compact wire form and publishes it on the
// Trade exchange under the (platform, symbol) routing key.
func publishTrade(b *bus.Bus, tr events.Trade) {
	data, err := tr.MarshalCompact()
	if err != nil {
		return
	}
	b.Publish(bus.Event{
		Name:       "trade",
		Exchange:   bus.ExchangeTrade,
		RoutingKey: bus.RoutingKey(tr.Platform, tr.Symbol),
		Data:       data,
	})
}

// publishKline marshals k to its compact wire form and publishes it on the
// Kline exchange under the (platform, symbol) routing key.
func publishKline(b *bus.Bus, k events.Kline) {
	data, err := k.MarshalCompact()
	if err != nil {
		return
	}
	b.Publish(bus.Event{
		Name:       "kline",
		Exchange:   bus.ExchangeKline,
		RoutingKey: bus.RoutingKey(k.Platform, k.Symbol),
		Data:       data,
	})
}
