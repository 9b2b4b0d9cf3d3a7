// Package bus implements a topic-exchange event bus: three pre-declared
// topic exchanges (Orderbook, Trade, Kline), single-subscriber queues
// consumed with explicit ack, wildcard multi-subscriber queues consumed
// without ack, auto-reconnect, and a zlib-compressed {n,d} JSON payload
// codec.
//
// All bus state (subscription list, handler table, connection) is owned
// by the scheduler's loop goroutine plus a small number of named
// goroutines per AMQP consumer; the subs slice and handler table are
// guarded by their own mutexes since Subscribe can be called concurrently
// with a reconnect's rebind pass.
package bus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/coreboth/marketrunner/internal/scheduler"
)

// initialBindGrace is the delay before the first bus connection applies
// queued subscriptions, giving other subsystems time to register theirs.
const initialBindGrace = 5 * time.Second

// healthCheckTicks is the loop interval, in scheduler ticks (1s each),
// for the channel health check.
const healthCheckTicks = 10

// Event is one bus message: the exchange it travels on, its routing key,
// the prefetch count for its queue (single-subscriber only), and its
// already-compact-form payload bytes (produced by the entity's
// MarshalCompact method).
type Event struct {
	Name          string
	Exchange      Exchange
	RoutingKey    string
	PrefetchCount int
	Data          []byte
}

type subscription struct {
	event    Event
	callback func(Event)
	multi    bool
	bound    bool
}

// Bus is the process-wide event bus client.
type Bus struct {
	url      string
	serverID string
	sched    *scheduler.Scheduler
	logger   *slog.Logger

	connMu   sync.Mutex
	conn     *amqp.Connection
	pubCh    *amqp.Channel
	connected bool

	subsMu sync.Mutex // named mutex serializing bus.Subscribe recording
	subs   []*subscription
	ready  bool // true once the initial grace-period bind pass has run

	handlersMu sync.Mutex
	handlers   map[handlerKey][]func(Event)

	healthLoopID int
	firstConnect bool
}

// New creates a Bus. Connect must be called before Publish/Subscribe take
// effect against a live broker; Subscribe may be called beforehand and
// the subscription is simply queued.
func New(url, serverID string, sched *scheduler.Scheduler, logger *slog.Logger) *Bus {
	return &Bus{
		url:          url,
		serverID:     serverID,
		sched:        sched,
		logger:       logger.With("component", "bus"),
		handlers:     make(map[handlerKey][]func(Event)),
		firstConnect: true,
	}
}

// Connected reports whether the bus currently has a live channel.
func (b *Bus) Connected() bool {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	return b.connected
}

// Connect dials the broker, declares the three topic exchanges, and
// arranges for queued subscriptions to be bound — after the initial
// grace period on first connect, or immediately on every subsequent
// reconnect. It blocks until the first connect attempt completes, so the
// runtime root's boot sequence can fail fast on a bad broker config.
func (b *Bus) Connect(ctx context.Context) error {
	first := b.firstConnect
	b.firstConnect = false

	if err := b.dial(); err != nil {
		// connect() logs and returns without surfacing on reconnect; on the
		// very first connect we do return the error so the caller can fail fast.
		b.logger.Error("bus connect failed", "error", err)
		if first {
			return err
		}
		return nil
	}

	if first {
		b.healthLoopID = b.sched.RegisterLoop(healthCheckTicks, func(int, uint64) { b.checkHealth(ctx) })
		b.sched.CallLater(initialBindGrace, func() { b.becomeReady() })
	} else {
		b.becomeReady()
	}

	return nil
}

func (b *Bus) dial() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	for _, ex := range []Exchange{ExchangeOrderbook, ExchangeTrade, ExchangeKline} {
		if err := ch.ExchangeDeclare(string(ex), "topic", true, false, false, false, nil); err != nil {
			conn.Close()
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	closeNotify := make(chan *amqp.Error, 1)
	ch.NotifyClose(closeNotify)
	go b.watchClose(closeNotify)

	b.connMu.Lock()
	b.conn = conn
	b.pubCh = ch
	b.connected = true
	b.connMu.Unlock()

	b.logger.Info("bus connected", "url", b.url)
	return nil
}

func (b *Bus) watchClose(closeNotify chan *amqp.Error) {
	err := <-closeNotify
	b.connMu.Lock()
	b.connected = false
	b.connMu.Unlock()

	b.handlersMu.Lock()
	b.handlers = make(map[handlerKey][]func(Event))
	b.handlersMu.Unlock()

	b.subsMu.Lock()
	for _, s := range b.subs {
		s.bound = false
	}
	b.ready = false
	b.subsMu.Unlock()

	b.logger.Warn("bus channel closed, will reconnect on next health check", "error", err)
}

// checkHealth runs every 10s; on a lost channel it clears local state and
// reinitiates connection.
func (b *Bus) checkHealth(ctx context.Context) {
	if b.Connected() {
		return
	}
	if err := b.dial(); err != nil {
		b.logger.Warn("bus reconnect attempt failed", "error", err)
		return
	}
	b.becomeReady()
}

// becomeReady applies every queued subscription's broker binding. On
// first connect this runs once after the grace period; on reconnect it
// runs immediately, rebuilding the handler table from the retained
// subscription list.
func (b *Bus) becomeReady() {
	b.subsMu.Lock()
	subs := append([]*subscription(nil), b.subs...)
	b.ready = true
	b.subsMu.Unlock()

	single := make(map[handlerKey][]*subscription)
	var wildcard []*subscription
	for _, s := range subs {
		if s.bound {
			continue
		}
		if s.multi {
			wildcard = append(wildcard, s)
			continue
		}
		key := handlerKey{exchange: s.event.Exchange, routingKey: s.event.RoutingKey}
		single[key] = append(single[key], s)
	}

	for key, group := range single {
		if err := b.bindSingleGroup(key, group); err != nil {
			b.logger.Error("bind single-subscriber queue failed", "exchange", key.exchange, "routing_key", key.routingKey, "error", err)
			continue
		}
		for _, s := range group {
			s.bound = true
		}
	}

	for _, s := range wildcard {
		if err := b.bindWildcard(s); err != nil {
			b.logger.Error("bind wildcard queue failed", "routing_key", s.event.RoutingKey, "error", err)
			continue
		}
		s.bound = true
	}
}

func (b *Bus) bindSingleGroup(key handlerKey, group []*subscription) error {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}

	prefetch := 1
	if group[0].event.PrefetchCount > 0 {
		prefetch = group[0].event.PrefetchCount
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		return fmt.Errorf("set qos: %w", err)
	}

	queueName := SingleSubscriberQueue(b.serverID, key.exchange, key.routingKey)
	q, err := ch.QueueDeclare(queueName, false, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, key.routingKey, string(key.exchange), false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	b.handlersMu.Lock()
	for _, s := range group {
		cb := s.callback
		b.handlers[key] = append(b.handlers[key], cb)
	}
	b.handlersMu.Unlock()

	go b.consumeSingle(key, deliveries)
	return nil
}

func (b *Bus) consumeSingle(key handlerKey, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		name, data, err := decodePayload(d.Body)
		if err != nil {
			b.logger.Warn("failed to decode bus payload, acking and dropping", "error", err)
			d.Ack(false)
			continue
		}

		b.handlersMu.Lock()
		cbs := append([]func(Event){}, b.handlers[key]...)
		b.handlersMu.Unlock()

		ev := Event{Name: name, Exchange: key.exchange, RoutingKey: d.RoutingKey, Data: data}
		for _, cb := range cbs {
			cb(ev)
		}
		d.Ack(false)
	}
}

func (b *Bus) bindWildcard(s *subscription) error {
	b.connMu.Lock()
	conn := b.conn
	b.connMu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("declare exclusive queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, s.event.RoutingKey, string(s.event.Exchange), false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		return fmt.Errorf("consume queue: %w", err)
	}

	go func() {
		for d := range deliveries {
			name, data, err := decodePayload(d.Body)
			if err != nil {
				b.logger.Warn("failed to decode bus payload, dropping", "error", err)
				continue
			}
			s.callback(Event{Name: name, Exchange: s.event.Exchange, RoutingKey: d.RoutingKey, Data: data})
		}
	}()
	return nil
}

// Subscribe records (event, callback, multi) and performs the broker
// binding immediately if the bus is already in the ready state (i.e. a
// becomeReady pass has run since the last connect, either the initial
// grace-period pass or a reconnect's rebind pass), otherwise the binding
// is deferred to the next becomeReady pass.
func (b *Bus) Subscribe(ev Event, callback func(Event), multi bool) {
	s := &subscription{event: ev, callback: callback, multi: multi}

	b.subsMu.Lock()
	b.subs = append(b.subs, s)
	ready := b.ready
	b.subsMu.Unlock()

	if !ready {
		return
	}

	if multi {
		if err := b.bindWildcard(s); err != nil {
			b.logger.Error("bind wildcard queue failed", "routing_key", ev.RoutingKey, "error", err)
			return
		}
	} else {
		key := handlerKey{exchange: ev.Exchange, routingKey: ev.RoutingKey}
		if err := b.bindSingleGroup(key, []*subscription{s}); err != nil {
			b.logger.Error("bind single-subscriber queue failed", "exchange", ev.Exchange, "routing_key", ev.RoutingKey, "error", err)
			return
		}
	}
	s.bound = true
}

// Publish sends event on its owning exchange. Best-effort: drops with a
// warning if the bus isn't connected.
func (b *Bus) Publish(ev Event) {
	b.connMu.Lock()
	ch := b.pubCh
	connected := b.connected
	b.connMu.Unlock()

	if !connected || ch == nil {
		b.logger.Warn("bus not connected, dropping publish", "exchange", ev.Exchange, "routing_key", ev.RoutingKey)
		return
	}

	payload, err := encodePayload(ev.Name, ev.Data)
	if err != nil {
		b.logger.Error("failed to encode bus payload", "error", err)
		return
	}

	err = ch.Publish(string(ev.Exchange), ev.RoutingKey, false, false, amqp.Publishing{
		ContentType: "application/octet-stream",
		Body:        payload,
	})
	if err != nil {
		b.logger.Warn("bus publish failed, dropping", "exchange", ev.Exchange, "routing_key", ev.RoutingKey, "error", err)
	}
}

// Close tears down the connection. The scheduler's health loop is left
// registered; it stops firing once the scheduler itself is stopped.
func (b *Bus) Close() error {
	b.connMu.Lock()
	defer b.connMu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	b.pubCh = nil
	b.connected = false
	return err
}
