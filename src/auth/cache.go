package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"market-streamer/src/models"
)

// TokenCache keeps the last quote token on disk as JSON {token, url, timestamp}.
type TokenCache struct {
	path string
	ttl  time.Duration

	mu sync.RWMutex
}

func NewTokenCache(path string, ttl time.Duration) *TokenCache {
	return &TokenCache{path: path, ttl: ttl}
}

// -----------------------------------------------------------------------------

// Load returns the cached token if the file exists and the token is younger than the ttl.
// A missing, unreadable or expired cache is a miss, not an error.
func (tc *TokenCache) Load(now time.Time) (*models.MQuoteToken, bool) {
	if tc.path == "" {
		return nil, false
	}

	tc.mu.RLock()
	defer tc.mu.RUnlock()

	data, err := os.ReadFile(tc.path)
	if err != nil {
		return nil, false
	}

	var tok models.MQuoteToken
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, false
	}
	if !tok.Valid(now, tc.ttl) {
		return nil, false
	}
	return &tok, true
}

// -----------------------------------------------------------------------------

// Store writes the token atomically (temp file + rename).
func (tc *TokenCache) Store(tok *models.MQuoteToken) error {
	if tc.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return err
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if dir := filepath.Dir(tc.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating cache dir: %w", err)
		}
	}

	tmp := tc.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing token cache: %w", err)
	}
	return os.Rename(tmp, tc.path)
}

// -----------------------------------------------------------------------------

func (tc *TokenCache) Clear() error {
	if tc.path == "" {
		return nil
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	if err := os.Remove(tc.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
