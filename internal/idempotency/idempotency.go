// Package idempotency derives stable keys for inbound Slack events so retried
// deliveries are processed once. Slack's Events API is at-least-once.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"
)

// EventKey returns a stable key for a raw event payload. The payload is
// canonicalized (RFC 8785) before hashing so key order and whitespace
// differences between retries do not produce distinct keys.
func EventKey(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("idempotency: empty payload")
	}
	canon, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("idempotency: canonicalize payload: %w", err)
	}
	sum := sha256.Sum256(canon)
	return "evt_" + hex.EncodeToString(sum[:]), nil
}

// SeenSet remembers recently seen keys up to a fixed capacity, evicting the
// oldest first. Safe for concurrent use.
type SeenSet struct {
	mu    sync.Mutex
	cap   int
	order []string
	seen  map[string]bool
}

func NewSeenSet(capacity int) *SeenSet {
	if capacity <= 0 {
		capacity = 1024
	}
	return &SeenSet{
		cap:  capacity,
		seen: make(map[string]bool, capacity),
	}
}

// Observe records key and reports whether it was already present.
func (s *SeenSet) Observe(key string) bool {
	key = strings.TrimSpace(key)
	if s == nil || key == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[key] {
		return true
	}
	s.seen[key] = true
	s.order = append(s.order, key)
	if len(s.order) > s.cap {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	return false
}
