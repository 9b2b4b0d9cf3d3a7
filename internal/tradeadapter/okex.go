package tradeadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/marketadapter"
	"github.com/coreboth/marketrunner/internal/scheduler"
	"github.com/coreboth/marketrunner/internal/wsclient"
	"github.com/coreboth/marketrunner/pkg/events"
	"github.com/coreboth/marketrunner/pkg/order"
)

const (
	okexRESTBase    = "https://www.okx.com"
	okexWSPrivate   = "wss://ws.okx.com:8443/ws/v5/private"
	okexLoginPath   = "/users/self/verify"
	okexRESTTimeout = 10 * time.Second
)

// okexPingIntervalTicks is the keepalive ping cadence, in 1s scheduler
// ticks, for the private order-update channel.
const okexPingIntervalTicks = 20

// OKExAdapter is the OKEx trading connection: HMAC-SHA256+Base64 signed
// REST order placement/cancellation plus a login-gated private WS channel
// for order push updates.
type OKExAdapter struct {
	account Account
	http    *httpc.Pool
	sched   *scheduler.Scheduler
	rl      *RateLimiter
	logger  *slog.Logger

	ws     *wsclient.Client
	pingID int

	mu       sync.Mutex
	orders   map[string]order.Order
	onUpdate func(order.Order)
}

// NewOKExAdapter constructs an adapter for one OKEx account.
func NewOKExAdapter(account Account, pool *httpc.Pool, sched *scheduler.Scheduler, logger *slog.Logger) *OKExAdapter {
	return &OKExAdapter{
		account: account,
		http:    pool,
		sched:   sched,
		rl:      NewRateLimiter(20, 20, 20),
		logger:  logger.With("component", "tradeadapter", "platform", marketadapter.PlatformOKEx),
		orders:  make(map[string]order.Order),
	}
}

func (a *OKExAdapter) signer() okexSigner {
	return okexSigner{apiKey: a.account.APIKey, secretKey: a.account.SecretKey, passphrase: a.account.Passphrase}
}

// Start seeds open orders from REST and opens the private WS channel,
// logging in once the handshake completes, and registers the keepalive
// ping loop.
func (a *OKExAdapter) Start(ctx context.Context) error {
	if err := a.http.EnableRetry(okexRESTBase); err != nil {
		a.logger.Error("enable rest retry failed", "error", err)
	}

	if err := a.seedOpenOrders(ctx); err != nil {
		a.logger.Error("seed open orders failed", "error", err)
	}

	a.ws = wsclient.New(wsclient.Config{
		URL:       okexWSPrivate,
		Connected: a.login,
		Process:   a.handlePrivateFrame,
		Logger:    a.logger,
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

// SetUpdateCallback registers the order-lifecycle hook.
func (a *OKExAdapter) SetUpdateCallback(f func(order.Order)) {
	a.onUpdate = f
}

// State reports the private-channel WS lifecycle state for the status
// endpoint.
func (a *OKExAdapter) State() wsclient.State {
	if a.ws == nil {
		return wsclient.Idle
	}
	return a.ws.State()
}

type okexLoginArg struct {
	APIKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type okexLoginMessage struct {
	Op   string         `json:"op"`
	Args []okexLoginArg `json:"args"`
}

// login sends the sign-on frame required before OKEx's private channel
// will accept subscriptions or push order updates.
func (a *OKExAdapter) login() {
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := a.signer().sign(ts, http.MethodGet, okexLoginPath, "")

	msg := okexLoginMessage{Op: "login", Args: []okexLoginArg{{
		APIKey:     a.account.APIKey,
		Passphrase: a.account.Passphrase,
		Timestamp:  ts,
		Sign:       sig,
	}}}
	if err := a.ws.Send(msg); err != nil {
		a.logger.Error("okex login failed", "error", err)
	}
}

func (a *OKExAdapter) signedHeaders(method, requestPath, body string) map[string]string {
	ts := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
	sig := a.signer().sign(ts, method, requestPath, body)
	return map[string]string{
		"OK-ACCESS-KEY":        a.account.APIKey,
		"OK-ACCESS-SIGN":       sig,
		"OK-ACCESS-TIMESTAMP":  ts,
		"OK-ACCESS-PASSPHRASE": a.account.Passphrase,
		"Content-Type":         "application/json",
	}
}

func (a *OKExAdapter) seedOpenOrders(ctx context.Context) error {
	const path = "/api/v5/trade/orders-pending"
	headers := a.signedHeaders(http.MethodGet, path, "")

	_, body, err := a.http.Fetch(ctx, http.MethodGet, okexRESTBase+path, nil, nil, headers, okexRESTTimeout)
	if err != nil {
		return err
	}
	list, err := okexDataList(body)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, raw := range list {
		o, err := okexOrderFromREST(raw)
		if err != nil {
			a.logger.Warn("skipping malformed open order", "error", err)
			continue
		}
		a.orders[o.OrderID] = o
	}
	return nil
}

// okexDataList extracts the "data" array from an OKEx REST envelope
// ({"code","msg","data":[...]}), as decoded by httpc.Pool.Fetch.
func okexDataList(body any) ([]any, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected okex response shape")
	}
	list, ok := m["data"].([]any)
	if !ok {
		return nil, fmt.Errorf("okex response missing data array")
	}
	return list, nil
}

// SubmitOrder places a LIMIT or MARKET order via POST /trade/order.
func (a *OKExAdapter) SubmitOrder(ctx context.Context, o order.Order) (order.Order, error) {
	if err := a.rl.Order.Wait(ctx); err != nil {
		return order.Order{}, err
	}

	if o.ClientOrderID == "" {
		o.ClientOrderID = strings.ReplaceAll(uuid.New().String(), "-", "")
	}

	side := "buy"
	if o.Action == events.Sell {
		side = "sell"
	}
	ordType := "limit"
	if o.OrderType == order.Market {
		ordType = "market"
	}

	payload := map[string]any{
		"instId":  marketadapter.ToOKExSymbol(o.Symbol),
		"tdMode":  "cash",
		"side":    side,
		"ordType": ordType,
		"sz":      o.Quantity.String(),
		"clOrdId": o.ClientOrderID,
	}
	if ordType == "limit" {
		payload["px"] = o.Price.String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return order.Order{}, err
	}

	const path = "/api/v5/trade/order"
	headers := a.signedHeaders(http.MethodPost, path, string(body))

	_, resp, err := a.http.Fetch(ctx, http.MethodPost, okexRESTBase+path, nil, payload, headers, okexRESTTimeout)
	if err != nil {
		return order.Order{}, fmt.Errorf("submit order: %w", err)
	}
	list, err := okexDataList(resp)
	if err != nil || len(list) == 0 {
		return order.Order{}, fmt.Errorf("submit order: empty response")
	}

	entry, ok := list[0].(map[string]any)
	if !ok {
		return order.Order{}, fmt.Errorf("submit order: unexpected entry shape")
	}

	result := o
	result.Platform = marketadapter.PlatformOKEx
	result.OrderID = fmt.Sprint(entry["ordId"])
	result.Status = order.StatusSubmitted
	if sCode := fmt.Sprint(entry["sCode"]); sCode != "0" {
		result.Status = order.StatusFailed
	}

	a.storeOrder(result)
	if a.onUpdate != nil {
		a.onUpdate(result)
	}
	return result, nil
}

// CancelOrder cancels a single order via POST /trade/cancel-order.
func (a *OKExAdapter) CancelOrder(ctx context.Context, orderID string) error {
	if err := a.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	existing, ok := a.orders[orderID]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown order id %q", orderID)
	}

	payload := map[string]any{
		"instId": marketadapter.ToOKExSymbol(existing.Symbol),
		"ordId":  orderID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	const path = "/api/v5/trade/cancel-order"
	headers := a.signedHeaders(http.MethodPost, path, string(body))

	_, _, err = a.http.Fetch(ctx, http.MethodPost, okexRESTBase+path, nil, payload, headers, okexRESTTimeout)
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}

	existing.Status = order.StatusCanceled
	a.storeOrder(existing)
	if a.onUpdate != nil {
		a.onUpdate(existing)
	}
	return nil
}

// OpenOrderIDs returns the currently tracked non-terminal order IDs.
func (a *OKExAdapter) OpenOrderIDs() []string {
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
func (a *OKExAdapter) Orders() map[string]order.Order {
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
func (a *OKExAdapter) storeOrder(o order.Order) {
	a.mu.Lock()
	if o.Status.Terminal() {
		delete(a.orders, o.OrderID)
	} else {
		a.orders[o.OrderID] = o
	}
	a.mu.Unlock()
}

func okexOrderFromREST(raw any) (order.Order, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return order.Order{}, fmt.Errorf("unexpected order shape")
	}

	action := events.Buy
	if fmt.Sprint(m["side"]) == "sell" {
		action = events.Sell
	}
	orderType := order.Limit
	if fmt.Sprint(m["ordType"]) == "market" {
		orderType = order.Market
	}

	price := decimalFromAny(m["px"])
	qty := decimalFromAny(m["sz"])
	filled := decimalFromAny(m["accFillSz"])

	return order.Order{
		Platform:      marketadapter.PlatformOKEx,
		OrderID:       fmt.Sprint(m["ordId"]),
		ClientOrderID: fmt.Sprint(m["clOrdId"]),
		Symbol:        marketadapter.FromOKExSymbol(fmt.Sprint(m["instId"])),
		Action:        action,
		OrderType:     orderType,
		Price:         price,
		Quantity:      qty,
		Remain:        qty.Sub(filled),
		Status:        normalizeOKExStatus(fmt.Sprint(m["state"])),
		UtimeMs:       time.Now().UnixMilli(),
	}, nil
}

// normalizeOKExStatus maps OKEx's native order state vocabulary onto the
// unified order.Status enum.
func normalizeOKExStatus(s string) order.Status {
	switch s {
	case "live":
		return order.StatusSubmitted
	case "partially_filled":
		return order.StatusPartialFilled
	case "filled":
		return order.StatusFilled
	case "canceled":
		return order.StatusCanceled
	case "mmp_canceled":
		return order.StatusFailed
	default:
		return order.StatusNone
	}
}

// handlePrivateFrame dispatches one decoded private-channel frame: login
// acks and the "orders" channel's push updates.
func (a *OKExAdapter) handlePrivateFrame(value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}

	var ack struct {
		Event string `json:"event"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &ack); err == nil && ack.Event != "" {
		if ack.Event == "login" && ack.Code != "0" {
			a.logger.Error("okex login rejected", "code", ack.Code)
		}
		return
	}

	var msg struct {
		Arg  struct{ Channel string `json:"channel"` } `json:"arg"`
		Data []any                                       `json:"data"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Arg.Channel != "orders" {
		return
	}

	for _, entry := range msg.Data {
		o, err := okexOrderFromREST(entry)
		if err != nil {
			continue
		}
		a.storeOrder(o)
		if a.onUpdate != nil {
			a.onUpdate(o)
		}
	}
}
