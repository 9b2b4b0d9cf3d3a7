package tradeadapter

import (
	"io"
	"log/slog"
	"testing"

	"github.com/coreboth/marketrunner/internal/httpc"
	"github.com/coreboth/marketrunner/internal/scheduler"
)

func TestNewReturnsRegisteredAdapter(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(Account{Platform: "binance", APIKey: "k", SecretKey: "s"}, httpc.New(""), scheduler.New(logger), logger)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil adapter")
	}
}

func TestNewUnknownPlatformErrors(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(Account{Platform: "nonexistent"}, httpc.New(""), scheduler.New(logger), logger); err == nil {
		t.Fatal("expected error for unregistered platform")
	}
}
