package repository

import (
	"context"
	"time"

	"github.com/dralsallum/theKnot-sub000/internal/domain"
	"github.com/dralsallum/theKnot-sub000/internal/store"
)

// CartRepository persists cart snapshots keyed by user id.
type CartRepository interface {
	// Get returns the last saved snapshot. A missing cart is an
	// apperrors.NotFound error.
	Get(ctx context.Context, userID string) (*store.Snapshot, error)

	// Save writes snap unless a snapshot with the same or a newer version is
	// already stored. It reports whether the write happened.
	Save(ctx context.Context, userID string, snap store.Snapshot) (bool, error)

	// Delete removes the user's snapshot. Deleting a missing cart is not an
	// error.
	Delete(ctx context.Context, userID string) error

	// Touch restarts the expiry of a stored snapshot. A missing cart is not an
	// error.
	Touch(ctx context.Context, userID string) error
}

// PendingPayment is a payment the backend accepted but has not settled yet,
// together with the cart lines it charges.
type PendingPayment struct {
	PaymentID string            `json:"payment_id"`
	Amount    int64             `json:"amount"`
	Lines     []domain.CartLine `json:"lines"`
	CreatedAt time.Time         `json:"created_at"`
}

// PaymentRepository keeps at most one pending payment per user.
type PaymentRepository interface {
	// GetPending returns the user's pending payment or an apperrors.NotFound
	// error.
	GetPending(ctx context.Context, userID string) (*PendingPayment, error)

	// SavePending replaces the user's pending payment.
	SavePending(ctx context.Context, userID string, p PendingPayment) error

	// DeletePending removes the user's pending payment, if any.
	DeletePending(ctx context.Context, userID string) error
}

// SessionRepository is everything the cart service persists.
type SessionRepository interface {
	CartRepository
	PaymentRepository
}
