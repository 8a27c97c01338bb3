package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/clictopay-gateway/internal/currency"
)

const schema = `
CREATE TABLE IF NOT EXISTS clictopay_orders (
	invoice_id   TEXT PRIMARY KEY,
	order_id     TEXT NOT NULL,
	form_url     TEXT NOT NULL,
	amount_minor BIGINT NOT NULL,
	currency     TEXT NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL
);
ALTER TABLE clictopay_orders ADD COLUMN IF NOT EXISTS checked_at TIMESTAMPTZ;
DROP INDEX IF EXISTS clictopay_orders_pending_idx;
CREATE INDEX IF NOT EXISTS clictopay_orders_sweep_idx
	ON clictopay_orders (checked_at NULLS FIRST, created_at) WHERE status = 'pending';
`

const selectColumns = `invoice_id, order_id, form_url, amount_minor, currency, status, created_at, updated_at, checked_at`

type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (r *Postgres) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *Postgres) Close() { r.pool.Close() }

func (r *Postgres) Create(ctx context.Context, s Session) (bool, error) {
	minor, err := currency.ToMinor(s.Amount)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.Status == "" {
		s.Status = StatusPending
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO clictopay_orders
			(invoice_id, order_id, form_url, amount_minor, currency, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (invoice_id) DO NOTHING`,
		s.InvoiceID,
		s.OrderID,
		s.FormURL,
		minor,
		s.Currency,
		string(s.Status),
		s.CreatedAt,
		now,
	)
	if err != nil {
		return false, err
	}

	// 0 rows = another session already owns the invoice
	return tag.RowsAffected() == 1, nil
}

func (r *Postgres) Find(ctx context.Context, invoiceID string) (Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+selectColumns+`
		FROM clictopay_orders
		WHERE invoice_id = $1`,
		invoiceID,
	)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	return s, err
}

func (r *Postgres) MarkPaid(ctx context.Context, invoiceID string) error {
	return r.exec(ctx, `
		UPDATE clictopay_orders
		SET status = 'paid', updated_at = $1
		WHERE invoice_id = $2`,
		time.Now().UTC(),
		invoiceID,
	)
}

// MarkClosed leaves a paid order paid.
func (r *Postgres) MarkClosed(ctx context.Context, invoiceID string) error {
	return r.exec(ctx, `
		UPDATE clictopay_orders
		SET status = CASE WHEN status = 'pending' THEN 'closed' ELSE status END, updated_at = $1
		WHERE invoice_id = $2`,
		time.Now().UTC(),
		invoiceID,
	)
}

func (r *Postgres) MarkChecked(ctx context.Context, invoiceID string) error {
	now := time.Now().UTC()
	return r.exec(ctx, `
		UPDATE clictopay_orders
		SET checked_at = $1, updated_at = $1
		WHERE invoice_id = $2`,
		now,
		invoiceID,
	)
}

// exec runs a single-invoice update; no matching row is ErrNotFound.
func (r *Postgres) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Postgres) ListPending(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM clictopay_orders
		WHERE status = $1
		ORDER BY checked_at NULLS FIRST, created_at, invoice_id
		LIMIT $2`,
		string(StatusPending),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		s       Session
		minor   int64
		status  string
		checked *time.Time
	)
	if err := row.Scan(
		&s.InvoiceID,
		&s.OrderID,
		&s.FormURL,
		&minor,
		&s.Currency,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
		&checked,
	); err != nil {
		return Session{}, err
	}
	if checked != nil {
		s.CheckedAt = checked.UTC()
	}
	s.Amount = currency.FromMinor(minor)
	s.Status = Status(status)
	return s, nil
}

var _ Store = (*Postgres)(nil)
