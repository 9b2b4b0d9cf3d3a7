// Package posstore provides crash-safe position persistence using JSON
// files.
//
// Each (platform, account, strategy, symbol) position is stored as a
// separate file keyed by those four fields. Writes use atomic file
// replacement (write to .tmp, then rename) to prevent corruption from
// partial writes or crashes mid-save. The runtime root calls Save for each
// of the trade façade's aggregated positions during shutdown; Load reads
// one saved position back by its key.
package posstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coreboth/marketrunner/pkg/order"
)

// Store persists positions to JSON files in a designated directory.
// All operations are mutex-protected to prevent concurrent file corruption.
type Store struct {
	dir string
	mu  sync.Mutex
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create posstore dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// key builds the filename for one (platform, account, strategy, symbol)
// position, substituting path separators in the symbol so "BTC/USDT"
// doesn't escape the store directory.
func key(platform, account, strategy, symbol string) string {
	safeSymbol := strings.ReplaceAll(symbol, "/", "-")
	return fmt.Sprintf("pos_%s_%s_%s_%s.json", platform, account, strategy, safeSymbol)
}

// Save atomically persists one position.
func (s *Store) Save(pos order.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}

	path := filepath.Join(s.dir, key(pos.Platform, pos.Account, pos.Strategy, pos.Symbol))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write position: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load restores one position from disk. Returns nil, nil if no saved
// position exists yet for that key.
func (s *Store) Load(platform, account, strategy, symbol string) (*order.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.dir, key(platform, account, strategy, symbol))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read position: %w", err)
	}

	var pos order.Position
	if err := json.Unmarshal(data, &pos); err != nil {
		return nil, fmt.Errorf("unmarshal position: %w", err)
	}
	return &pos, nil
}
