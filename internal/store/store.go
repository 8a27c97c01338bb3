// Package store persists the invoice -> gateway order association across the
// payer's redirect round-trip. Implementations are safe for concurrent use and
// hold at most one session per invoice.
package store

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

var ErrNotFound = errors.New("order session not found")

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	// StatusClosed marks an order the gateway will never complete: cancelled,
	// declined or abandoned. It is no longer swept.
	StatusClosed Status = "closed"
)

type Session struct {
	InvoiceID string
	OrderID   string
	FormURL   string
	Amount    decimal.Decimal
	Currency  string
	Status    Status
	CreatedAt time.Time
	UpdatedAt time.Time
	// CheckedAt is the last status query; zero until the first one.
	CheckedAt time.Time
}

type Store interface {
	// Create stores s unless a session for s.InvoiceID already exists.
	// It reports whether s was inserted.
	Create(ctx context.Context, s Session) (bool, error)
	Find(ctx context.Context, invoiceID string) (Session, error)
	MarkPaid(ctx context.Context, invoiceID string) error
	MarkClosed(ctx context.Context, invoiceID string) error
	// MarkChecked records a status query at the current time.
	MarkChecked(ctx context.Context, invoiceID string) error
	// ListPending returns up to limit pending sessions, least recently
	// checked first; never-checked sessions come first, oldest first.
	ListPending(ctx context.Context, limit int) ([]Session, error)
}

func sweepOrder(sessions []Session) {
	sort.Slice(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.CheckedAt.Equal(b.CheckedAt) {
			return a.CheckedAt.Before(b.CheckedAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.InvoiceID < b.InvoiceID
	})
}
