package store

import "context"

func (r *Postgres) Truncate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `TRUNCATE clictopay_orders`)
	return err
}
