package runtime

import (
	"testing"

	"github.com/coreboth/marketrunner/internal/config"
)

func TestPosDirDefaultsWhenExtraAbsent(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if got := posDir(cfg); got != "positions" {
		t.Errorf("posDir() = %q, want %q", got, "positions")
	}
}

func TestStatusPortDefaultsWhenExtraAbsent(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	if got := statusPort(cfg); got != defaultStatusPort {
		t.Errorf("statusPort() = %d, want %d", got, defaultStatusPort)
	}
}
