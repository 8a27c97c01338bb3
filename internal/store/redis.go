package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	redisKeyPrefix  = "clictopay:order:"
	redisPendingKey = "clictopay:orders:pending"
)

// Redis stores one JSON document per invoice and tracks unpaid invoices in a
// set. The ttl applies while an order is pending or closed; paid sessions are
// kept without expiry. A zero ttl keeps every session.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
	return &Redis{rdb: rdb, ttl: ttl}
}

type redisSession struct {
	InvoiceID string          `json:"invoice_id"`
	OrderID   string          `json:"order_id"`
	FormURL   string          `json:"form_url"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	CheckedAt time.Time       `json:"checked_at"`
}

const maxTxRetries = 5

func (r *Redis) key(invoiceID string) string {
	return redisKeyPrefix + invoiceID
}

func (r *Redis) Create(ctx context.Context, s Session) (bool, error) {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.Status == "" {
		s.Status = StatusPending
	}

	data, err := json.Marshal(redisSession(s))
	if err != nil {
		return false, err
	}

	ttl := r.ttl
	if s.Status == StatusPaid {
		ttl = 0
	}
	ok, err := r.rdb.SetNX(ctx, r.key(s.InvoiceID), data, ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if s.Status == StatusPending {
		if err := r.rdb.SAdd(ctx, redisPendingKey, s.InvoiceID).Err(); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (r *Redis) Find(ctx context.Context, invoiceID string) (Session, error) {
	return find(ctx, r.rdb, r.key(invoiceID))
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func find(ctx context.Context, c getter, key string) (Session, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, err
	}

	var rs redisSession
	if err := json.Unmarshal(data, &rs); err != nil {
		return Session{}, err
	}
	return Session(rs), nil
}

// MarkPaid drops the expiry: a paid invoice must stay known.
func (r *Redis) MarkPaid(ctx context.Context, invoiceID string) error {
	return r.update(ctx, invoiceID, func(s *Session) time.Duration {
		s.Status = StatusPaid
		return 0
	})
}

func (r *Redis) MarkClosed(ctx context.Context, invoiceID string) error {
	return r.update(ctx, invoiceID, func(s *Session) time.Duration {
		if s.Status == StatusPending {
			s.Status = StatusClosed
		}
		return redis.KeepTTL
	})
}

func (r *Redis) MarkChecked(ctx context.Context, invoiceID string) error {
	return r.update(ctx, invoiceID, func(s *Session) time.Duration {
		s.CheckedAt = time.Now().UTC()
		return redis.KeepTTL
	})
}

// update rewrites one session under WATCH so a concurrent writer cannot undo
// the change. fn returns the expiration to set; redis.KeepTTL keeps the
// current one.
func (r *Redis) update(ctx context.Context, invoiceID string, fn func(*Session) time.Duration) error {
	key := r.key(invoiceID)
	txf := func(tx *redis.Tx) error {
		s, err := find(ctx, tx, key)
		if err != nil {
			return err
		}
		expiration := fn(&s)
		s.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(redisSession(s))
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, expiration)
			if s.Status != StatusPending {
				p.SRem(ctx, redisPendingKey, invoiceID)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return redis.TxFailedErr
}

func (r *Redis) ListPending(ctx context.Context, limit int) ([]Session, error) {
	ids, err := r.rdb.SMembers(ctx, redisPendingKey).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]Session, 0, len(ids))
	for _, id := range ids {
		s, err := r.Find(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired; drop the dangling index entry
			r.rdb.SRem(ctx, redisPendingKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if s.Status == StatusPending {
			sessions = append(sessions, s)
		}
	}

	sweepOrder(sessions)
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}
	return sessions, nil
}

var _ Store = (*Redis)(nil)
