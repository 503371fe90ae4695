package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dralsallum/theKnot-sub000/internal/store"
	pkgkafka "github.com/dralsallum/theKnot-sub000/pkg/kafka"
	"github.com/dralsallum/theKnot-sub000/pkg/logger"
)

// Kafka topics produced by the cart session service.
var (
	TopicCartUpdated       = pkgkafka.Topic("cart", "updated")
	TopicCartCleared       = pkgkafka.Topic("cart", "cleared")
	TopicCartPaymentStatus = pkgkafka.Topic("cart", "payment_status")
)

// AggregateTypeCart is the aggregate type stamped on cart events.
const AggregateTypeCart = "cart"

// SourceCartSession identifies events originating from this service.
const SourceCartSession = "cart-session"

// Publisher sends an event to a topic. *pkgkafka.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// DiscardPublisher drops every event. It stands in for Kafka when publishing
// is disabled.
type DiscardPublisher struct{}

// Publish implements Publisher.
func (DiscardPublisher) Publish(context.Context, string, *pkgkafka.Event) error { return nil }

// CartUpdatedData is the payload for a cart.updated event.
type CartUpdatedData struct {
	UserID        string         `json:"user_id"`
	Lines         []CartLineData `json:"lines"`
	TotalQuantity int            `json:"total_quantity"`
	TotalPrice    int64          `json:"total_price"`
	Status        string         `json:"status"`
}

// CartLineData is the line payload within cart events.
type CartLineData struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	Category  string `json:"category,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// CartClearedData is the payload for a cart.cleared event.
type CartClearedData struct {
	UserID string `json:"user_id"`
}

// PaymentStatusData is the payload for a cart.payment_status event.
type PaymentStatusData struct {
	UserID     string `json:"user_id"`
	Status     string `json:"status"`
	PaymentID  string `json:"payment_id,omitempty"`
	TotalPrice int64  `json:"total_price"`
}

// Producer publishes cart domain events to Kafka.
type Producer struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewProducer creates a new event producer for the cart session service.
func NewProducer(publisher Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishCartUpdated publishes a cart.updated event carrying the full cart.
func (p *Producer) PublishCartUpdated(ctx context.Context, userID string, snap store.Snapshot) error {
	lines := make([]CartLineData, len(snap.State.Lines))
	for i, l := range snap.State.Lines {
		lines[i] = CartLineData{
			ProductID: l.ProductID,
			Name:      l.Name,
			Category:  l.Category,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
	}

	data := CartUpdatedData{
		UserID:        userID,
		Lines:         lines,
		TotalQuantity: snap.State.TotalQuantity,
		TotalPrice:    snap.State.TotalPrice,
		Status:        string(snap.State.Status),
	}
	if err := p.publish(ctx, TopicCartUpdated, userID, snap.Version, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.updated event",
		slog.String("user_id", userID),
		slog.Int("total_quantity", snap.State.TotalQuantity),
	)
	return nil
}

// PublishCartCleared publishes a cart.cleared event.
func (p *Producer) PublishCartCleared(ctx context.Context, userID string, version uint64) error {
	if err := p.publish(ctx, TopicCartCleared, userID, version, CartClearedData{UserID: userID}); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.cleared event", slog.String("user_id", userID))
	return nil
}

// PublishPaymentStatus publishes a cart.payment_status event.
func (p *Producer) PublishPaymentStatus(ctx context.Context, userID, paymentID string, snap store.Snapshot) error {
	data := PaymentStatusData{
		UserID:     userID,
		Status:     string(snap.State.Status),
		PaymentID:  paymentID,
		TotalPrice: snap.State.TotalPrice,
	}
	if err := p.publish(ctx, TopicCartPaymentStatus, userID, snap.Version, data); err != nil {
		return err
	}

	p.logger.DebugContext(ctx, "published cart.payment_status event",
		slog.String("user_id", userID),
		slog.String("status", data.Status),
	)
	return nil
}

func (p *Producer) publish(ctx context.Context, topic, userID string, version uint64, data any) error {
	evt, err := pkgkafka.NewEvent(topic, userID, AggregateTypeCart, SourceCartSession, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	evt.WithVersion(int(version))
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		evt.WithCorrelationID(id)
	}

	if err := p.publisher.Publish(ctx, topic, evt); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

