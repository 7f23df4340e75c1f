package sender

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/order-fulfillment/internal/notification/application"
)

// Log writes notices to the structured log instead of delivering them.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Send(ctx context.Context, n application.Notice) error {
	l.log.InfoContext(ctx, "notification sent",
		"kind", n.Kind, "order_id", n.OrderID, "recipient", n.Recipient, "subject", n.Subject, "body", n.Body)
	return nil
}
