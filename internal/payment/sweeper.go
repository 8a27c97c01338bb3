package payment

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/example/clictopay-gateway/internal/store"
)

const (
	DefaultSweepInterval = time.Minute
	DefaultBatchSize     = 50
	DefaultMaxPendingAge = 24 * time.Hour
)

type Checker interface {
	CheckPayment(ctx context.Context, invoiceID string) Outcome
}

var _ Checker = (*Reconciler)(nil)

type SweepStore interface {
	ListPending(ctx context.Context, limit int) ([]store.Session, error)
	MarkClosed(ctx context.Context, invoiceID string) error
}

// Sweeper re-checks unpaid orders on a timer, so a payment is picked up even
// when the payer never comes back to the billing platform. Each sweep takes
// the least recently checked orders; an order still unpaid after MaxAge is
// closed.
type Sweeper struct {
	Store     SweepStore
	Checker   Checker
	Interval  time.Duration
	BatchSize int
	MaxAge    time.Duration
	Log       *zap.Logger

	// OnSweep, when set, is called after every sweep Run performs.
	OnSweep func(SweepStats, error)
}

type SweepStats struct {
	Checked  int
	Paid     int
	Declined int
	Errors   int
	Closed   int
}

func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		stats, err := s.SweepOnce(ctx)
		if err != nil && ctx.Err() == nil {
			s.log().Warn("reconciliation sweep failed", zap.Error(err))
		}
		if s.OnSweep != nil && ctx.Err() == nil {
			s.OnSweep(stats, err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	limit := s.BatchSize
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	maxAge := s.MaxAge
	if maxAge <= 0 {
		maxAge = DefaultMaxPendingAge
	}
	pending, err := s.Store.ListPending(ctx, limit)
	if err != nil {
		return stats, err
	}

	for _, sess := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		out := s.Checker.CheckPayment(ctx, sess.InvoiceID)
		stats.Checked++
		switch out.Status {
		case StatusSuccess:
			stats.Paid++
		case StatusDeclined:
			stats.Declined++
			if time.Since(sess.CreatedAt) > maxAge {
				if err := s.Store.MarkClosed(ctx, sess.InvoiceID); err != nil {
					s.log().Warn("close abandoned order", zap.String("invoice_id", sess.InvoiceID), zap.Error(err))
				} else {
					stats.Closed++
				}
			}
		default:
			stats.Errors++
		}
	}

	if stats.Checked > 0 {
		s.log().Info("reconciliation sweep done",
			zap.Int("checked", stats.Checked),
			zap.Int("paid", stats.Paid),
			zap.Int("declined", stats.Declined),
			zap.Int("errors", stats.Errors),
			zap.Int("closed", stats.Closed),
		)
	}
	return stats, nil
}

func (s *Sweeper) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
