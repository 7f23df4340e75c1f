//go:build integration

package integration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	inventorypg "github.com/dmehra2102/order-fulfillment/internal/inventory/infrastructure/postgres"
	orderpg "github.com/dmehra2102/order-fulfillment/internal/order/infrastructure/postgres"
	paymentpg "github.com/dmehra2102/order-fulfillment/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/order-fulfillment/pkg/outbox"
)

var (
	env  *Env
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  = slog.New(slog.NewTextHandler(io.Discard, nil))
)

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	var err error
	env, err = Setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "integration env:", err)
		return 1
	}
	defer env.Teardown(ctx)

	pool, err = pgxpool.New(ctx, env.PGURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "pg connect:", err)
		return 1
	}
	defer pool.Close()
	for _, ddl := range []string{outbox.Schema, orderpg.Schema, paymentpg.Schema, inventorypg.Schema} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			fmt.Fprintln(os.Stderr, "schema:", err)
			return 1
		}
	}

	rdb = redis.NewClient(&redis.Options{Addr: env.RedisAddr})
	defer rdb.Close()

	return m.Run()
}

func outboxRows(t *testing.T, aggregateID string) []string {
	t.Helper()
	rows, err := pool.Query(context.Background(), `SELECT type FROM outbox WHERE aggregate_id=$1 ORDER BY id`, aggregateID)
	if err != nil {
		t.Fatalf("query outbox: %v", err)
	}
	defer rows.Close()
	var types []string
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			t.Fatalf("scan outbox: %v", err)
		}
		types = append(types, typ)
	}
	return types
}
