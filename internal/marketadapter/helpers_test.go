package marketadapter

import (
	"io"
	"log/slog"
	"testing"

	"github.com/coreboth/marketrunner/internal/bus"
	"github.com/coreboth/marketrunner/internal/scheduler"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testBus returns a Bus that has never connected; Publish on it is a no-op
// warn-and-drop, which is all these adapter tests need to exercise the
// publish path without a broker.
func testBus(t *testing.T) *bus.Bus {
	t.Helper()
	logger := testLogger()
	return bus.New("amqp://unused", "test-server", scheduler.New(logger), logger)
}
