package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/order-fulfillment/internal/inventory/domain"
	"github.com/dmehra2102/order-fulfillment/pkg/eventbus"
	"github.com/dmehra2102/order-fulfillment/pkg/outbox"
)

const aggregateType = "inventory"

const Schema = `
CREATE TABLE IF NOT EXISTS stock (
	book_isbn TEXT NOT NULL,
	seller_id TEXT NOT NULL,
	quantity  INT  NOT NULL CHECK (quantity >= 0),
	PRIMARY KEY (book_isbn, seller_id)
);

CREATE TABLE IF NOT EXISTS reservations (
	order_item_id  UUID PRIMARY KEY,
	order_id       UUID        NOT NULL,
	book_isbn      TEXT        NOT NULL,
	seller_id      TEXT        NOT NULL,
	quantity       INT         NOT NULL,
	status         TEXT        NOT NULL,
	failure_reason TEXT        NOT NULL DEFAULT '',
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS reservations_order_idx ON reservations (order_id);
`

type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{
		log:  log,
		pool: pool,
	}
}

// SetStock overwrites the shelf quantity of a book for a seller.
func (r *Repository) SetStock(ctx context.Context, isbn, sellerID string, quantity int) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO stock (book_isbn, seller_id, quantity) VALUES ($1,$2,$3)
		ON CONFLICT (book_isbn, seller_id) DO UPDATE SET quantity=$3`, isbn, sellerID, quantity)
	return err
}

func (r *Repository) Available(ctx context.Context, isbn, sellerID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT quantity FROM stock WHERE book_isbn=$1 AND seller_id=$2`, isbn, sellerID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

func (r *Repository) RecordReservations(ctx context.Context, lines []domain.Reservation) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO reservations (order_item_id, order_id, book_isbn, seller_id, quantity, status, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (order_item_id) DO NOTHING`,
			l.OrderItemID, l.OrderID, l.BookISBN, l.SellerID, l.Quantity, l.Status, l.UpdatedAt)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *Repository) Decrement(ctx context.Context, orderItemID uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		var isbn, seller string
		var qty int
		err := tx.QueryRow(ctx, `UPDATE reservations SET status=$2, failure_reason='', updated_at=now()
			WHERE order_item_id=$1 AND status IN ($3,$4)
			RETURNING book_isbn, seller_id, quantity`,
			orderItemID, domain.ReservationDecremented, domain.ReservationPending, domain.ReservationFailed).
			Scan(&isbn, &seller, &qty)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		ct, err := tx.Exec(ctx, `UPDATE stock SET quantity = quantity - $3
			WHERE book_isbn=$1 AND seller_id=$2 AND quantity >= $3`, isbn, seller, qty)
		if err != nil {
			return err
		}
		if ct.RowsAffected() == 0 {
			return fmt.Errorf("%s from seller %s: %w", isbn, seller, domain.ErrInsufficientStock)
		}
		return nil
	})
}

func (r *Repository) MarkFailed(ctx context.Context, orderItemID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `UPDATE reservations SET status=$2, failure_reason=$3, updated_at=now()
		WHERE order_item_id=$1 AND status=$4`,
		orderItemID, domain.ReservationFailed, reason, domain.ReservationPending)
	return err
}

// Release runs after any concurrent Decrement of the same line commits, so a
// line is either released here or decremented and left for Restore.
func (r *Repository) Release(ctx context.Context, lines []domain.Reservation) error {
	batch := &pgx.Batch{}
	for _, l := range lines {
		batch.Queue(`INSERT INTO reservations (order_item_id, order_id, book_isbn, seller_id, quantity, status, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7)
			ON CONFLICT (order_item_id) DO UPDATE SET status=EXCLUDED.status, updated_at=EXCLUDED.updated_at
			WHERE reservations.status IN ($8,$9)`,
			l.OrderItemID, l.OrderID, l.BookISBN, l.SellerID, l.Quantity, domain.ReservationReleased, l.UpdatedAt,
			domain.ReservationPending, domain.ReservationFailed)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

func (r *Repository) Restore(ctx context.Context, orderItemID uuid.UUID, msgs ...eventbus.Message) (bool, error) {
	var restored bool
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		restored = false
		var isbn, seller string
		var qty int
		err := tx.QueryRow(ctx, `UPDATE reservations SET status=$2, updated_at=now()
			WHERE order_item_id=$1 AND status=$3
			RETURNING book_isbn, seller_id, quantity`,
			orderItemID, domain.ReservationRestored, domain.ReservationDecremented).
			Scan(&isbn, &seller, &qty)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
		case err != nil:
			return err
		default:
			if _, err := tx.Exec(ctx, `UPDATE stock SET quantity = quantity + $3 WHERE book_isbn=$1 AND seller_id=$2`,
				isbn, seller, qty); err != nil {
				return err
			}
			restored = true
		}

		for _, msg := range msgs {
			if err := outbox.Insert(ctx, tx, aggregateType, msg); err != nil {
				return fmt.Errorf("enqueue %s: %w", msg.RoutingKey, err)
			}
		}
		return nil
	})
	return restored, err
}

const selectReservation = `SELECT order_item_id, order_id, book_isbn, seller_id, quantity, status, failure_reason, updated_at FROM reservations`

func (r *Repository) Reservation(ctx context.Context, orderItemID uuid.UUID) (domain.Reservation, error) {
	row := r.pool.QueryRow(ctx, selectReservation+` WHERE order_item_id=$1`, orderItemID)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, domain.ErrReservationNotFound
	}
	return res, err
}

func (r *Repository) Reservations(ctx context.Context, orderID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, selectReservation+` WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(&res.OrderItemID, &res.OrderID, &res.BookISBN, &res.SellerID, &res.Quantity, &res.Status, &res.FailureReason, &res.UpdatedAt)
	return res, err
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
