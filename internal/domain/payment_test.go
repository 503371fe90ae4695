package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentIdle, PaymentPaying, true},
		{PaymentFailed, PaymentPaying, true},
		{PaymentPaying, PaymentPaid, true},
		{PaymentPaying, PaymentFailed, true},
		{PaymentIdle, PaymentPaid, false},
		{PaymentIdle, PaymentFailed, false},
		{PaymentPaying, PaymentPaying, false},
		{PaymentPaid, PaymentPaying, false},
		{PaymentPaid, PaymentFailed, false},
		{PaymentStatus("bogus"), PaymentPaying, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_Valid(t *testing.T) {
	for _, s := range []PaymentStatus{PaymentIdle, PaymentPaying, PaymentPaid, PaymentFailed} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, PaymentStatus("refunded").Valid())
}

func TestPaymentFlow_SuccessKeepsLines(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 2))
	before := s.Clone()

	require.NoError(t, s.MarkPaymentStarted())
	assert.Equal(t, PaymentPaying, s.Status)
	require.NoError(t, s.MarkPaymentSucceeded())
	assert.Equal(t, PaymentPaid, s.Status)

	assert.Equal(t, before.Lines, s.Lines)
	assert.Equal(t, before.TotalQuantity, s.TotalQuantity)
	assert.Equal(t, before.TotalPrice, s.TotalPrice)
}

func TestPaymentFlow_FailureThenRetry(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.MarkPaymentStarted())
	require.NoError(t, s.MarkPaymentFailed())
	assert.Equal(t, PaymentFailed, s.Status)

	require.NoError(t, s.MarkPaymentStarted())
	assert.Equal(t, PaymentPaying, s.Status)
}

func TestPaymentFlow_InvalidTransitionIsConflict(t *testing.T) {
	s := NewCartState()

	err := s.MarkPaymentSucceeded()

	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrConflict))
	assert.Equal(t, PaymentIdle, s.Status)
}

func TestPaymentFlow_EmptyStatusTreatedAsIdle(t *testing.T) {
	s := &CartState{}
	require.NoError(t, s.MarkPaymentStarted())
	assert.Equal(t, PaymentPaying, s.Status)
}

func TestPaymentFlow_LinesMutableWhilePaying(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.MarkPaymentStarted())

	require.NoError(t, s.AddToCart(line("p1", 100), 1))
	assert.True(t, s.RemoveFromCart("p1"))
	assert.Equal(t, PaymentPaying, s.Status)
}

func TestSettlePayment_KeepsUnitsAddedWhilePaying(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("veil", 1000), 2))
	require.NoError(t, s.MarkPaymentStarted())
	paid := s.Clone().Lines

	require.NoError(t, s.AddToCart(line("bouquet", 500), 1))
	require.NoError(t, s.AddToCart(line("veil", 1000), 1))
	require.NoError(t, s.MarkPaymentSucceeded())

	require.NoError(t, s.SettlePayment(paid))

	assert.Equal(t, PaymentIdle, s.Status)
	assert.Equal(t, []CartLine{
		{ProductID: "veil", Name: "item veil", UnitPrice: 1000, Quantity: 1},
		{ProductID: "bouquet", Name: "item bouquet", UnitPrice: 500, Quantity: 1},
	}, s.Lines)
	assert.Equal(t, 2, s.TotalQuantity)
	assert.Equal(t, int64(1500), s.TotalPrice)
}

func TestSettlePayment_RemovesFullyPaidAndIgnoresRemovedLines(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("veil", 1000), 2))
	require.NoError(t, s.AddToCart(line("cake", 300), 1))
	require.NoError(t, s.MarkPaymentStarted())
	paid := s.Clone().Lines

	assert.True(t, s.RemoveFromCart("cake"))
	require.NoError(t, s.MarkPaymentSucceeded())
	require.NoError(t, s.SettlePayment(paid))

	assert.True(t, s.IsEmpty())
	assert.Equal(t, 0, s.TotalQuantity)
	assert.Equal(t, int64(0), s.TotalPrice)
	assert.Equal(t, PaymentIdle, s.Status)
}

func TestSettlePayment_RequiresPaid(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("veil", 1000), 1))
	require.NoError(t, s.MarkPaymentStarted())

	err := s.SettlePayment(s.Clone().Lines)

	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Len(t, s.Lines, 1)
	assert.Equal(t, PaymentPaying, s.Status)
}
