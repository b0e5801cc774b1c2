package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"deliverycart/internal/logging"
	"deliverycart/internal/metrics"
)

// Manager keeps live sessions in memory. A session evicted for being idle,
// or lost to a restart, is restored from the flag store on next access.
type Manager struct {
	deps Deps

	mu       sync.Mutex
	sessions map[string]*Session

	idleTTL       time.Duration
	sweepInterval time.Duration
}

func NewManager(d Deps) *Manager {
	d.setDefaults()
	return &Manager{
		deps:          d,
		sessions:      make(map[string]*Session),
		idleTTL:       30 * time.Minute,
		sweepInterval: time.Minute,
	}
}

// Create starts a new session and mounts it.
func (m *Manager) Create(ctx context.Context) (*Session, View, error) {
	s := newSession(uuid.NewString(), &m.deps)

	s.mu.Lock()
	err := s.persistLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, View{}, fmt.Errorf("create session: %w", err)
	}

	v, err := s.reconcile(ctx, true)
	if err != nil {
		return nil, View{}, err
	}
	s.initOnce.Do(func() {})

	m.mu.Lock()
	m.sessions[s.id] = s
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	m.mu.Unlock()
	return s, v, nil
}

// Get returns the live session for id, restoring it from storage when it
// is not in memory. Unknown ids return ErrSessionNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrSessionNotFound
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = newSession(id, &m.deps)
		m.sessions[id] = s
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
	m.mu.Unlock()

	s.initOnce.Do(func() { s.initErr = s.restore(ctx) })
	if s.initErr != nil {
		m.forget(s)
		return nil, s.initErr
	}
	s.touch()
	return s, nil
}

func (s *Session) restore(ctx context.Context) error {
	_, ok, err := s.store.Get(ctx, KeyCart)
	if err != nil {
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	_, err = s.reconcile(ctx, true)
	return err
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
		metrics.ActiveSessions.Set(float64(len(m.sessions)))
	}
}

// Sweep drops sessions idle for longer than the TTL from memory. Their
// persisted state is kept.
func (m *Manager) Sweep() int {
	cutoff := m.deps.Clock().Add(-m.idleTTL)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	metrics.ActiveSessions.Set(float64(len(m.sessions)))
	return n
}

// Len reports the number of sessions in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Serve sweeps idle sessions until ctx is done.
func (m *Manager) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logging.Debug().Int("evicted", n).Msg("idle checkout sessions evicted")
			}
		}
	}
}

func (m *Manager) String() string { return "checkout-sessions" }
