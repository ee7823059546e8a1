package service

import (
	"context"
	"time"

	"dating_platform/internal/logger"
)

// Notifier pushes a best-effort message to a connected user. Delivery is
// at most once; offline users miss it.
type Notifier interface {
	Notify(userID int64, msgType string, data any)
}

// EventPublisher emits domain events for other services.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

type noopNotifier struct{}

func (noopNotifier) Notify(int64, string, any) {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

// Push message types
const (
	MsgGiftReceived        = "gift_received"
	MsgTransactionVerified = "transaction_verified"
	MsgWithdrawalUpdated   = "withdrawal_updated"
	MsgSubscriptionChanged = "subscription_changed"
)

// Page is one slice of a listing plus the unpaged total.
type Page[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

const maxPageSize = 100

// normalizePage clamps paging input, applying def when limit is unset.
func normalizePage(limit, offset, def int) (int, int) {
	if limit <= 0 {
		limit = def
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func publish(ctx context.Context, p EventPublisher, routingKey string, body any) {
	if err := p.Publish(ctx, routingKey, body); err != nil {
		logger.WithContext(ctx).Warn("event publish failed", "routing_key", routingKey, "error", err)
	}
}

type clock func() time.Time

func systemClock() time.Time { return time.Now().UTC() }
