package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-fulfillment/internal/order/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/outbox"
)

const aggregateType = "order"

const Schema = `
CREATE TABLE IF NOT EXISTS orders (
	id                  UUID PRIMARY KEY,
	customer_id         TEXT        NOT NULL,
	status              TEXT        NOT NULL,
	total               NUMERIC(12,2) NOT NULL,
	created_at          TIMESTAMPTZ NOT NULL,
	paid_date           TIMESTAMPTZ,
	shipped_date        TIMESTAMPTZ,
	delivered_date      TIMESTAMPTZ,
	cancelled_date      TIMESTAMPTZ,
	refunded_date       TIMESTAMPTZ,
	cancellation_reason TEXT,
	refund_reason       TEXT,
	version             BIGINT      NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS order_items (
	id         UUID PRIMARY KEY,
	order_id   UUID    NOT NULL REFERENCES orders(id),
	position   INT     NOT NULL,
	book_isbn  TEXT    NOT NULL,
	seller_id  TEXT    NOT NULL,
	quantity   INT     NOT NULL CHECK (quantity BETWEEN 1 AND 1000),
	unit_price NUMERIC(12,2) NOT NULL,
	status     TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS order_items_order_idx ON order_items (order_id, position);
`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

func (r *Repository) Create(ctx context.Context, o *domain.Order, msgs ...eventbus.Message) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO orders (id, customer_id, status, total, created_at, paid_date, shipped_date,
				delivered_date, cancelled_date, refunded_date, cancellation_reason, refund_reason, version)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			o.ID, o.CustomerID, o.Status, o.Total, o.CreatedAt, o.PaidDate, o.ShippedDate,
			o.DeliveredDate, o.CancelledDate, o.RefundedDate, o.CancellationReason, o.RefundReason, o.Version)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, item := range o.Items {
			batch.Queue(`INSERT INTO order_items (id, order_id, position, book_isbn, seller_id, quantity, unit_price, status)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
				item.ID, o.ID, i, item.BookISBN, item.SellerID, item.Quantity, item.UnitPrice, item.Status)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}
		return r.enqueue(ctx, tx, msgs)
	})
}

// Update writes o back if nobody else changed it since it was loaded and
// bumps o.Version on success.
func (r *Repository) Update(ctx context.Context, o *domain.Order, msgs ...eventbus.Message) error {
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		ct, err := tx.Exec(ctx, `UPDATE orders SET status=$3, paid_date=$4, shipped_date=$5, delivered_date=$6,
				cancelled_date=$7, refunded_date=$8, cancellation_reason=$9, refund_reason=$10, version=version+1
			WHERE id=$1 AND version=$2`,
			o.ID, o.Version, o.Status, o.PaidDate, o.ShippedDate, o.DeliveredDate,
			o.CancelledDate, o.RefundedDate, o.CancellationReason, o.RefundReason)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if ct.RowsAffected() == 0 {
			return domain.ErrConcurrentUpdate
		}

		batch := &pgx.Batch{}
		for _, item := range o.Items {
			batch.Queue(`UPDATE order_items SET status=$2 WHERE id=$1`, item.ID, item.Status)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("update order items: %w", err)
		}
		return r.enqueue(ctx, tx, msgs)
	})
	if err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := r.pool.QueryRow(ctx, `SELECT id, customer_id, status, total, created_at, paid_date, shipped_date,
			delivered_date, cancelled_date, refunded_date, cancellation_reason, refund_reason, version
		FROM orders WHERE id=$1`, id).
		Scan(&o.ID, &o.CustomerID, &o.Status, &o.Total, &o.CreatedAt, &o.PaidDate, &o.ShippedDate,
			&o.DeliveredDate, &o.CancelledDate, &o.RefundedDate, &o.CancellationReason, &o.RefundReason, &o.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, book_isbn, seller_id, quantity, unit_price, status
		FROM order_items WHERE order_id=$1 ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		item := domain.OrderItem{OrderID: o.ID}
		if err := rows.Scan(&item.ID, &item.BookISBN, &item.SellerID, &item.Quantity, &item.UnitPrice, &item.Status); err != nil {
			return nil, err
		}
		o.Items = append(o.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *Repository) enqueue(ctx context.Context, tx pgx.Tx, msgs []eventbus.Message) error {
	for _, msg := range msgs {
		if err := outbox.Insert(ctx, tx, aggregateType, msg); err != nil {
			return fmt.Errorf("enqueue %s: %w", msg.RoutingKey, err)
		}
	}
	return nil
}

func (r *Repository) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
