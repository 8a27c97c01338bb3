package store

import (
	"context"
	"sync"
	"time"
)

// Memory keeps sessions in process memory. It suits tests and single-process
// deployments; sessions do not survive a restart.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]Session),
	}
}

func (r *Memory) Create(_ context.Context, s Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[s.InvoiceID]; exists {
		return false, nil
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = StatusPending
	}
	r.sessions[s.InvoiceID] = s
	return true, nil
}

func (r *Memory) Find(_ context.Context, invoiceID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[invoiceID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

func (r *Memory) MarkPaid(_ context.Context, invoiceID string) error {
	return r.update(invoiceID, func(s *Session) { s.Status = StatusPaid })
}

func (r *Memory) MarkClosed(_ context.Context, invoiceID string) error {
	return r.update(invoiceID, func(s *Session) {
		if s.Status == StatusPending {
			s.Status = StatusClosed
		}
	})
}

func (r *Memory) MarkChecked(_ context.Context, invoiceID string) error {
	return r.update(invoiceID, func(s *Session) { s.CheckedAt = time.Now().UTC() })
}

func (r *Memory) update(invoiceID string, fn func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[invoiceID]
	if !ok {
		return ErrNotFound
	}
	fn(&s)
	s.UpdatedAt = time.Now().UTC()
	r.sessions[invoiceID] = s
	return nil
}

func (r *Memory) ListPending(_ context.Context, limit int) ([]Session, error) {
	r.mu.RLock()
	pending := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Status == StatusPending {
			pending = append(pending, s)
		}
	}
	r.mu.RUnlock()

	sweepOrder(pending)
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

var _ Store = (*Memory)(nil)
