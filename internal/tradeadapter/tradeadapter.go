// Package tradeadapter implements the per-exchange trade connections: REST
// order submission/cancellation, authenticated user-data streams, and order
// state-machine normalization into the unified order.Order/order.Status
// vocabulary. Package trade's façade dispatches to one Adapter per platform
// via the registry in this package.
package tradeadapter

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"

	"github.com/coreboth/marketrunner/internal/wsclient"
	"github.com/coreboth/marketrunner/pkg/order"
)

// Account holds one platform's trading credentials, decoded from the
// config's freeform ACCOUNTS entries.
type Account struct {
	Platform   string `mapstructure:"platform"`
	APIKey     string `mapstructure:"api_key"`
	SecretKey  string `mapstructure:"secret_key"`
	Passphrase string `mapstructure:"passphrase"` // OKEx only
}

// ParseAccount decodes one ACCOUNTS entry into an Account.
func ParseAccount(m map[string]any) (Account, error) {
	var acct Account
	if err := mapstructure.Decode(m, &acct); err != nil {
		return Account{}, fmt.Errorf("decode account: %w", err)
	}
	return acct, nil
}

// Adapter is one exchange's trading connection.
type Adapter interface {
	Start(ctx context.Context) error
	Stop() error

	SubmitOrder(ctx context.Context, o order.Order) (order.Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	OpenOrderIDs() []string
	Orders() map[string]order.Order
	// State reports the adapter's WS lifecycle state for the status endpoint.
	State() wsclient.State

	// SetUpdateCallback registers the hook invoked whenever an order's
	// status changes (REST ack or user-data stream push). The façade uses
	// this to keep its own order view and aggregated positions in sync.
	SetUpdateCallback(func(order.Order))
}

var errUnsupportedPlatform = fmt.Errorf("tradeadapter: no adapter registered for platform")

// UnsupportedPlatformError reports an unregistered platform name.
func UnsupportedPlatformError(platform string) error {
	return fmt.Errorf("%w %q", errUnsupportedPlatform, platform)
}
