package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dralsallum/theKnot-sub000/internal/backend"
	"github.com/dralsallum/theKnot-sub000/internal/domain"
	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
	pkgkafka "github.com/dralsallum/theKnot-sub000/pkg/kafka"
)

// TopicPaymentCompleted carries the final outcome of a payment that was
// pending when checkout returned.
var TopicPaymentCompleted = pkgkafka.Topic("payment", "completed")

// CartService defines the interface required by the event consumer.
type CartService interface {
	ApplyPaymentResult(ctx context.Context, userID, paymentID string, succeeded bool) error
}

// PaymentCompletedData is the expected payload of a payment.completed event.
type PaymentCompletedData struct {
	PaymentID string `json:"payment_id"`
	UserID    string `json:"user_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

// Consumer processes incoming Kafka events for the cart session service.
type Consumer struct {
	logger  *slog.Logger
	service CartService
}

// NewConsumer creates a new event consumer.
func NewConsumer(service CartService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandlePaymentCompleted applies the payment outcome to the user's cart.
// Events that can never succeed (no user, unknown status, a cart that is no
// longer paying) are logged and acknowledged.
func (c *Consumer) HandlePaymentCompleted(ctx context.Context, evt *pkgkafka.Event) error {
	var data PaymentCompletedData
	if err := evt.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal payment.completed data: %w", err)
	}

	if data.UserID == "" {
		c.logger.WarnContext(ctx, "payment.completed event without user_id",
			slog.String("event_id", evt.EventID),
			slog.String("payment_id", data.PaymentID),
		)
		return nil
	}

	var succeeded bool
	switch data.Status {
	case backend.PaymentStatusSucceeded:
		succeeded = true
	case backend.PaymentStatusFailed:
		succeeded = false
	default:
		c.logger.WarnContext(ctx, "payment.completed event with unknown status",
			slog.String("payment_id", data.PaymentID),
			slog.String("status", data.Status),
		)
		return nil
	}

	c.logger.InfoContext(ctx, "processing payment.completed event",
		slog.String("payment_id", data.PaymentID),
		slog.String("user_id", data.UserID),
		slog.String("status", string(statusOf(succeeded))),
	)

	err := c.service.ApplyPaymentResult(ctx, data.UserID, data.PaymentID, succeeded)
	if errors.Is(err, apperrors.ErrConflict) {
		c.logger.WarnContext(ctx, "payment result does not match cart status, skipping",
			slog.String("payment_id", data.PaymentID),
			slog.String("user_id", data.UserID),
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply payment %s for user %s: %w", data.PaymentID, data.UserID, err)
	}
	return nil
}

func statusOf(succeeded bool) domain.PaymentStatus {
	if succeeded {
		return domain.PaymentPaid
	}
	return domain.PaymentFailed
}
