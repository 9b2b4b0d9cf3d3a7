package tradeadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/marketadapter"
	"github.com/coreboth/marketrunner/internal/scheduler"
	"github.com/coreboth/marketrunner/internal/wsclient"
	"github.com/coreboth/marketrunner/pkg/events"
	"github.com/coreboth/marketrunner/pkg/order"
)

const (
	binanceRESTBase       = "https://api.binance.com"
	binanceWSBase         = "wss://stream.binance.com:9443/ws"
	binanceListenKeyTicks = 1800 // 30 minutes of 1s scheduler ticks
	binanceRESTTimeout    = 10 * time.Second
)

// BinanceAdapter is the Binance spot trading connection: signed REST order
// placement/cancellation, a listen-key-backed user-data WS stream, and
// listen-key keepalive via the scheduler.
type BinanceAdapter struct {
	account Account
	http    *httpc.Pool
	sched   *scheduler.Scheduler
	rl      *RateLimiter
	logger  *slog.Logger

	ws        *wsclient.Client
	listenKey string

	mu         sync.Mutex
	orders     map[string]order.Order // keyed by OrderID
	onUpdate   func(order.Order)
	refreshID  int
}

// NewBinanceAdapter constructs an adapter for one Binance account.
func NewBinanceAdapter(account Account, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) *BinanceAdapter {
	return &BinanceAdapter{
		account: account,
		http:    pool,
		sched:   sched,
		rl:      NewRateLimiter(10, 10, 20),
		logger:  logger.With("component", "tradeadapter", "platform", marketadapter.PlatformBinance),
		orders:  make(map[string]order.Order),
	}
}

func (a *BinanceAdapter) signer() binanceSigner {
	return binanceSigner{apiKey: a.account.APIKey, secretKey: a.account.SecretKey}
}

// Start acquires a listen key, seeds open orders from REST, opens the
// user-data WS stream, and schedules listen-key keepalive every 30 minutes.
func (a *BinanceAdapter) Start(ctx context.Context) error {
	if err := a.http.EnableRetry(binanceRESTBase); err != nil {
		a.logger.Error("enable rest retry failed", "error", err)
	}

	if err := a.acquireListenKey(ctx); err != nil {
		return fmt.Errorf("acquire listen key: %w", err)
	}
	if err := a.seedOpenOrders(ctx); err != nil {
		a.logger.Error("seed open orders failed", "error", err)
	}

	a.ws = wsclient.New(wsclient.Config{
		URL:     binanceWSBase + "/" + a.listenKey,
		Process: a.handleUserDataEvent,
		Logger:  a.logger,
	})
	a.ws.Start(ctx)

	a.refreshID = a.sched.RegisterLoop(binanceListenKeyTicks, func(int, uint64) {
		if err := a.refreshListenKey(ctx); err != nil {
			a.logger.Error("listen key refresh failed", "error", err)
		}
	})
	return nil
}

// Stop unregisters the keepalive loop and closes the WS connection.
func (a *BinanceAdapter) Stop() error {
	if a.refreshID != 0 {
		a.sched.UnregisterLoop(a.refreshID)
	}
	if a.ws == nil {
		return nil
	}
	return a.ws.Close()
}

// SetUpdateCallback registers the order-lifecycle hook.
func (a *BinanceAdapter) SetUpdateCallback(f func(order.Order)) {
	a.onUpdate = f
}

// State reports the user-data WS lifecycle state for the status endpoint.
func (a *BinanceAdapter) State() wsclient.State {
	if a.ws == nil {
		return wsclient.Idle
	}
	return a.ws.State()
}

func (a *BinanceAdapter) acquireListenKey(ctx context.Context) error {
	_, body, err := a.http.Fetch(ctx, http.MethodPost, binanceRESTBase+"/api/v3/userDataStream", nil, nil,
		map[string]string{"X-MBX-APIKEY": a.account.APIKey}, binanceRESTTimeout)
	if err != nil {
		return err
	}
	m, ok := body.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected listen key response shape")
	}
	key, _ := m["listenKey"].(string)
	if key == "" {
		return fmt.Errorf("empty listen key in response")
	}
	a.listenKey = key
	return nil
}

func (a *BinanceAdapter) refreshListenKey(ctx context.Context) error {
	q := url.Values{"listenKey": []string{a.listenKey}}
	full := binanceRESTBase + "/api/v3/userDataStream?" + q.Encode()
	_, _, err := a.http.Fetch(ctx, http.MethodPut, full, nil, nil,
		map[string]string{"X-MBX-APIKEY": a.account.APIKey}, binanceRESTTimeout)
	return err
}

func (a *BinanceAdapter) seedOpenOrders(ctx context.Context) error {
	full, err := a.signedURL(binanceRESTBase+"/api/v3/openOrders", url.Values{})
	if err != nil {
		return err
	}
	_, body, err := a.http.Fetch(ctx, http.MethodGet, full, nil, nil,
		map[string]string{"X-MBX-APIKEY": a.account.APIKey}, binanceRESTTimeout)
	if err != nil {
		return err
	}
	list, ok := body.([]any)
	if !ok {
		return fmt.Errorf("unexpected open orders response shape")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, raw := range list {
		o, err := binanceOrderFromREST(raw)
		if err != nil {
			a.logger.Warn("skipping malformed open order", "error", err)
			continue
		}
		a.orders[o.OrderID] = o
	}
	return nil
}

// signedURL appends timestamp + HMAC-SHA256 signature to params and returns
// the fully-formed request URL. The query string embedded in the URL is
// exactly what gets signed and exactly what Binance receives, avoiding any
// mismatch from the HTTP client re-encoding query parameters.
func (a *BinanceAdapter) signedURL(base string, params url.Values) (string, error) {
	if a.account.APIKey == "" || a.account.SecretKey == "" {
		return "", fmt.Errorf("missing binance credentials")
	}
	params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	encoded := params.Encode()
	sig := a.signer().sign(encoded)
	return base + "?" + encoded + "&signature=" + sig, nil
}

// SubmitOrder places a LIMIT or MARKET order and returns it updated with
// the exchange-assigned OrderID and initial status.
func (a *BinanceAdapter) SubmitOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if err := a.rl.Order.Wait(ctx); err != nil {
		return order.Order{}, err
	}

	if o.ClientOrderID == "" {
		o.ClientOrderID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}

	params := url.Values{
		"symbol":           []string{marketadapter.ToBinanceSymbol(o.Symbol)},
		"side":             []string{string(o.Action)},
		"type":             []string{string(o.OrderType)},
		"quantity":         []string{o.Quantity.String()},
		"newClientOrderId": []string{o.ClientOrderID},
	}
	if o.OrderType == order.Limit {
		params.Set("price", o.Price.String())
		params.Set("timeInForce", "GTC")
	}

	full, err := a.signedURL(binanceRESTBase+"/api/v3/order", params)
	if err != nil {
		return order.Order{}, err
	}

	_, body, err := a.http.Fetch(ctx, http.MethodPost, full, nil, nil,
		map[string]string{"X-MBX-APIKEY": a.account.APIKey}, binanceRESTTimeout)
	if err != nil {
		return order.Order{}, fmt.Errorf("submit order: %w", err)
	}

	result, err := binanceOrderFromREST(body)
	if err != nil {
		return order.Order{}, fmt.Errorf("parse order response: %w", err)
	}
	result.Account = o.Account
	result.Strategy = o.Strategy
	result.Platform = marketadapter.PlatformBinance

	a.storeOrder(result)
	if a.onUpdate != nil {
		a.onUpdate(result)
	}
	return result, nil
}

// CancelOrder cancels a single order by its exchange OrderID.
func (a *BinanceAdapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	existing, ok := a.orders[orderID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown order id %q", orderID)
	}

	params := url.Values{
		"symbol":  []string{marketadapter.ToBinanceSymbol(existing.Symbol)},
		"orderId": []string{orderID},
	}
	full, err := a.signedURL(binanceRESTBase+"/api/v3/order", params)
	if err != nil {
		return err
	}

	_, body, err := a.http.Fetch(ctx, http.MethodDelete, full, nil, nil,
		map[string]string{"X-MBX-APIKEY": a.account.APIKey}, binanceRESTTimeout)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	result, err := binanceOrderFromREST(body)
	if err == nil {
		a.storeOrder(result)
		if a.onUpdate != nil {
			a.onUpdate(result)
		}
	}
	return nil
}

// OpenOrderIDs returns the currently tracked non-terminal order IDs.
func (a *BinanceAdapter) OpenOrderIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]string, 0, len(a.orders))
	for id, o := range a.orders {
		if !o.Status.Terminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

// Orders returns a shallow copy of the tracked order map.
func (a *BinanceAdapter) Orders() map[string]order.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]order.Order, len(a.orders))
	for k, v := range a.orders {
		out[k] = v
	}
	return out
}

// storeOrder records o in the open-order map, or removes it once it has
// reached a terminal state, keeping Orders()/OpenOrderIDs() from leaking
// finished orders forever.
func (a *BinanceAdapter) storeOrder(o order.Order) {
	a.mu.Lock()
	if o.Status.Terminal() {
		delete(a.orders, o.OrderID)
	} else {
		a.orders[o.OrderID] = o
	}
	a.mu.Unlock()
}

// binanceOrderFromREST parses an /api/v3/order-shaped REST response body
// (decoded to map[string]any by httpc.Pool.Fetch) into an order.Order.
func binanceOrderFromREST(raw any) (order.Order, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return order.Order{}, fmt.Errorf("unexpected order response shape")
	}

	price := decimalFromAny(m["price"])
	qty := decimalFromAny(m["origQty"])
	executed := decimalFromAny(m["executedQty"])

	return order.Order{
		Platform:      marketadapter.PlatformBinance,
		OrderID:       fmt.Sprint(m["orderId"]),
		ClientOrderID: fmt.Sprint(m["clientOrderId"]),
		Symbol:        marketadapter.FromBinanceSymbol(fmt.Sprint(m["symbol"]), ""),
		Action:        events.Action(fmt.Sprint(m["side"])),
		OrderType:     order.Type(fmt.Sprint(m["type"])),
		Price:         price,
		Quantity:      qty,
		Remain:        qty.Sub(executed),
		Status:        normalizeBinanceStatus(fmt.Sprint(m["status"])),
		UtimeMs:       time.Now().UnixMilli(),
	}, nil
}

func decimalFromAny(v any) decimal.Decimal {
	s := fmt.Sprint(v)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// normalizeBinanceStatus maps Binance's native order status vocabulary onto
// the unified order.Status enum.
func normalizeBinanceStatus(s string) order.Status {
	switch s {
	case "NEW":
		return order.StatusSubmitted
	case "PARTIALLY_FILLED":
		return order.StatusPartialFilled
	case "FILLED":
		return order.StatusFilled
	case "CANCELED", "PENDING_CANCEL":
		return order.StatusCanceled
	case "REJECTED", "EXPIRED":
		return order.StatusFailed
	default:
		return order.StatusNone
	}
}

// handleUserDataEvent dispatches one decoded user-data stream frame,
// updating the tracked order and firing the update callback on
// executionReport events.
func (a *BinanceAdapter) handleUserDataEvent(value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	var ev struct {
		EventType     string `json:"e"`
		Symbol        string `json:"s"`
		ClientOrderID string `json:"c"`
		Side          string `json:"S"`
		OrderType     string `json:"o"`
		Price         string `json:"p"`
		Quantity      string `json:"q"`
		Status        string `json:"X"`
		OrderID       int64  `json:"i"`
		FilledQty     string `json:"z"`
		EventTime     int64  `json:"E"`
	}
	if err := json.Unmarshal(raw, &ev); err != nil || ev.EventType != "executionReport" {
		return
	}

	price, _ := decimal.NewFromString(ev.Price)
	qty, _ := decimal.NewFromString(ev.Quantity)
	filled, _ := decimal.NewFromString(ev.FilledQty)

	o := order.Order{
		Platform:      marketadapter.PlatformBinance,
		OrderID:       strconv.FormatInt(ev.OrderID, 10),
		ClientOrderID: ev.ClientOrderID,
		Symbol:        marketadapter.FromBinanceSymbol(ev.Symbol, ""),
		Action:        events.Action(ev.Side),
		OrderType:     order.Type(ev.OrderType),
		Price:         price,
		Quantity:      qty,
		Remain:        qty.Sub(filled),
		Status:        normalizeBinanceStatus(ev.Status),
		UtimeMs:       ev.EventTime,
	}

	a.storeOrder(o)
	if a.onUpdate != nil {
		a.onUpdate(o)
	}
}
