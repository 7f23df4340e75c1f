package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-fulfillment/internal/payment/domain"
)

const Schema = `
CREATE TABLE IF NOT EXISTS payments (
	order_id      UUID PRIMARY KEY,
	amount        NUMERIC(12,2) NOT NULL,
	method        TEXT        NOT NULL,
	reference     TEXT        NOT NULL,
	status        TEXT        NOT NULL,
	captured_at   TIMESTAMPTZ NOT NULL,
	refunded_at   TIMESTAMPTZ,
	refund_reason TEXT        NOT NULL DEFAULT ''
);
`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Save(ctx context.Context, p domain.Payment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO payments (order_id, amount, method, reference, status, captured_at, refunded_at, refund_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (order_id) DO UPDATE SET status=$5, refunded_at=$7, refund_reason=$8`,
		p.OrderID, p.Amount, p.Method, p.Reference, p.Status, p.CapturedAt, p.RefundedAt, p.RefundReason)
	return err
}

func (r *Repository) Get(ctx context.Context, orderID uuid.UUID) (domain.Payment, error) {
	var p domain.Payment
	err := r.pool.QueryRow(ctx, `SELECT order_id, amount, method, reference, status, captured_at, refunded_at, refund_reason
		FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.OrderID, &p.Amount, &p.Method, &p.Reference, &p.Status, &p.CapturedAt, &p.RefundedAt, &p.RefundReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, err
}
