// Package sessionid assigns session ids to visitors. A visitor keeps its
// session while it stays active; after the inactivity timeout a new
// time-ordered id is minted.
package sessionid

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shubhsaxena/search-insights/internal/observability"
)

const DefaultTimeout = 30 * time.Minute

type State struct {
	ID       string    `json:"id"`
	LastSeen time.Time `json:"last_seen"`
}

type Store interface {
	GetSession(ctx context.Context, visitor string) (State, bool, error)
	PutSession(ctx context.Context, visitor string, st State, ttl time.Duration) error
}

type Issuer struct {
	store   Store
	timeout time.Duration
	newID   func() (uuid.UUID, error)

	mu sync.Mutex
}

func NewIssuer(store Store, timeout time.Duration) *Issuer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Issuer{store: store, timeout: timeout, newID: uuid.NewV7}
}

// Resolve returns the visitor's active session id as of now, minting a new
// one when none exists or the last activity is older than the timeout.
// Events that arrive out of order reuse the session without moving its last
// activity backwards.
func (i *Issuer) Resolve(ctx context.Context, visitor string, now time.Time) (string, bool, error) {
	if visitor == "" {
		return "", false, fmt.Errorf("visitor key required")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	st, ok, err := i.store.GetSession(ctx, visitor)
	if err != nil {
		return "", false, fmt.Errorf("loading session state: %w", err)
	}

	minted := false
	if !ok || now.Sub(st.LastSeen) > i.timeout {
		id, err := i.newID()
		if err != nil {
			return "", false, fmt.Errorf("generating session id: %w", err)
		}
		st = State{ID: id.String(), LastSeen: now}
		minted = true
		observability.SessionsIssued.WithLabelValues("minted").Inc()
	} else {
		if now.After(st.LastSeen) {
			st.LastSeen = now
		}
		observability.SessionsIssued.WithLabelValues("reused").Inc()
	}

	if err := i.store.PutSession(ctx, visitor, st, i.timeout); err != nil {
		return "", false, fmt.Errorf("saving session state: %w", err)
	}
	return st.ID, minted, nil
}

// MemoryStore keeps session state in process. Entries expire ttl after their
// last write.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), clock: time.Now}
}

func (m *MemoryStore) GetSession(_ context.Context, visitor string) (State, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[visitor]
	if !ok {
		return State{}, false, nil
	}
	if m.clock().After(e.expiresAt) {
		delete(m.entries, visitor)
		return State{}, false, nil
	}
	return e.state, true, nil
}

func (m *MemoryStore) PutSession(_ context.Context, visitor string, st State, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[visitor] = memoryEntry{state: st, expiresAt: m.clock().Add(ttl)}
	return nil
}
