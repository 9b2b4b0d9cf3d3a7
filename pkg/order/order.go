// Package order defines the unified Order and Position records that trade
// adapters mutate and the trade façade exposes to strategies. Order/Position
// values handed to callers are shallow copies — the owning adapter is the
// only writer of an Order, and the trade façade of a Position.
package order

import (
	"github.com/shopspring/decimal"

	"github.com/coreboth/marketrunner/pkg/events"
)

// Type is the order type strategies may submit.
type Type string

const (
	Limit  Type = "LIMIT"
	Market Type = "MARKET"
)

// Status is the core order lifecycle state, normalized from each
// exchange's native status vocabulary (see tradeadapter per-exchange
// status tables).
type Status string

const (
	StatusNone           Status = "NONE"
	StatusSubmitted      Status = "SUBMITTED"
	StatusPartialFilled  Status = "PARTIAL_FILLED"
	StatusFilled         Status = "FILLED"
	StatusCanceled       Status = "CANCELED"
	StatusFailed         Status = "FAILED"
)

// Terminal reports whether the status removes the order from the
// open-orders map once the update callback has fired.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// Order is the unified order record shared across exchanges.
type Order struct {
	Platform      string
	Account       string
	Strategy      string
	OrderID       string
	ClientOrderID string
	Symbol        string
	Action        events.Action
	OrderType     Type
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	Remain        decimal.Decimal
	Status        Status
	AvgPrice      decimal.Decimal
	TradeType     string
	Fee           decimal.Decimal
	CtimeMs       int64
	UtimeMs       int64
}

// NewOrder builds an Order with Remain defaulted to Quantity, as spec'd:
// "remain is derived as quantity - filled and defaults to quantity when
// not provided".
func NewOrder(platform, account, strategy, symbol string, action events.Action, orderType Type, price, quantity decimal.Decimal) Order {
	return Order{
		Platform:  platform,
		Account:   account,
		Strategy:  strategy,
		Symbol:    symbol,
		Action:    action,
		OrderType: orderType,
		Price:     price,
		Quantity:  quantity,
		Remain:    quantity,
		Status:    StatusNone,
	}
}

// Position is a per (platform, account, strategy, symbol) inventory record.
// The trade façade builds and updates it from order fill updates.
type Position struct {
	Platform        string
	Account         string
	Strategy        string
	Symbol          string
	LongQuantity    decimal.Decimal
	ShortQuantity   decimal.Decimal
	LongAvgPrice    decimal.Decimal
	ShortAvgPrice   decimal.Decimal
	LiquidationPrice decimal.Decimal
	TimestampMs     int64
}
