package domain

import (
	"fmt"

	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

// PaymentStatus tracks the checkout flow. It never gates line mutations.
type PaymentStatus string

const (
	PaymentIdle   PaymentStatus = "idle"
	PaymentPaying PaymentStatus = "paying"
	PaymentPaid   PaymentStatus = "paid"
	PaymentFailed PaymentStatus = "failed"
)

// AllowedTransitions lists the statuses reachable from each status.
var AllowedTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentIdle:   {PaymentPaying},
	PaymentFailed: {PaymentPaying},
	PaymentPaying: {PaymentPaid, PaymentFailed},
	PaymentPaid:   {},
}

// Valid reports whether s is a known status.
func (s PaymentStatus) Valid() bool {
	_, ok := AllowedTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to target is allowed.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, allowed := range AllowedTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// MarkPaymentStarted moves idle or failed to paying.
func (s *CartState) MarkPaymentStarted() error {
	return s.transition(PaymentPaying)
}

// MarkPaymentSucceeded moves paying to paid. Lines are left in place; the
// caller decides whether to clear the cart.
func (s *CartState) MarkPaymentSucceeded() error {
	return s.transition(PaymentPaid)
}

// MarkPaymentFailed moves paying to failed.
func (s *CartState) MarkPaymentFailed() error {
	return s.transition(PaymentFailed)
}

func (s *CartState) transition(target PaymentStatus) error {
	current := s.Status
	if current == "" {
		current = PaymentIdle
	}
	if !current.CanTransitionTo(target) {
		return apperrors.Conflict(fmt.Sprintf("cannot change payment status from %s to %s", current, target))
	}
	s.Status = target
	return nil
}

// SettlePayment takes the paid quantities out of a paid cart and returns it
// to idle. Units added after the payment started stay in the cart; a line
// whose paid quantity covers everything left is removed.
func (s *CartState) SettlePayment(paid []CartLine) error {
	if s.Status != PaymentPaid {
		return apperrors.Conflict(fmt.Sprintf("cannot settle a cart in status %s", s.Status))
	}

	for _, p := range paid {
		i := s.FindLineIndex(p.ProductID)
		if i < 0 {
			continue
		}
		if s.Lines[i].Quantity <= p.Quantity {
			s.RemoveFromCart(p.ProductID)
			continue
		}
		s.Lines[i].Quantity -= p.Quantity
		s.TotalPrice -= s.Lines[i].UnitPrice * int64(p.Quantity)
	}
	s.Status = PaymentIdle
	return nil
}
