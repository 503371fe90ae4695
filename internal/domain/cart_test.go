package domain

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

func line(id string, price int64) CartLine {
	return CartLine{ProductID: id, Name: "item " + id, UnitPrice: price}
}

// sumSubtotals is the reference for the price invariant.
func sumSubtotals(s *CartState) int64 {
	var total int64
	for _, l := range s.Lines {
		total += l.UnitPrice * int64(l.Quantity)
	}
	return total
}

// ============================================================================
// AddToCart
// ============================================================================

func TestAddToCart_NewLine(t *testing.T) {
	s := NewCartState()

	require.NoError(t, s.AddToCart(line("p1", 1000), 2))

	require.Len(t, s.Lines, 1)
	assert.Equal(t, 2, s.Lines[0].Quantity)
	assert.Equal(t, 1, s.TotalQuantity)
	assert.Equal(t, int64(2000), s.TotalPrice)
}

func TestAddToCart_QuantityDefaultsToOne(t *testing.T) {
	s := NewCartState()

	require.NoError(t, s.AddToCart(line("p1", 750), 0))

	assert.Equal(t, 1, s.Lines[0].Quantity)
	assert.Equal(t, int64(750), s.TotalPrice)
}

func TestAddToCart_AccumulatesSameProduct(t *testing.T) {
	s := NewCartState()
	quantities := []int{1, 4, 2, 7}

	sum := 0
	for _, q := range quantities {
		require.NoError(t, s.AddToCart(line("veil", 1250), q))
		sum += q
	}

	require.Len(t, s.Lines, 1)
	assert.Equal(t, sum, s.Lines[0].Quantity)
	assert.Equal(t, int64(1250*sum), s.TotalPrice)
	assert.Equal(t, 1, s.TotalQuantity)
}

func TestAddToCart_KeepsFirstUnitPrice(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 1))
	require.NoError(t, s.AddToCart(line("p1", 800), 2))

	assert.Equal(t, int64(1000), s.Lines[0].UnitPrice)
	assert.Equal(t, int64(3000), s.TotalPrice)
	assert.Equal(t, sumSubtotals(s), s.TotalPrice)
}

func TestAddToCart_PreservesInsertionOrder(t *testing.T) {
	s := NewCartState()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.AddToCart(line(id, 100), 1))
	}
	require.NoError(t, s.AddToCart(line("c", 100), 1))

	ids := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		ids = append(ids, l.ProductID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestAddToCart_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		item     CartLine
		quantity int
	}{
		{"missing product id", line("", 100), 1},
		{"blank product id", line("   ", 100), 1},
		{"negative price", line("p1", -1), 1},
		{"negative quantity", line("p1", 100), -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewCartState()
			require.NoError(t, s.AddToCart(line("keep", 500), 1))
			before := s.Clone()

			err := s.AddToCart(tt.item, tt.quantity)

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
			assert.Equal(t, before, s)
		})
	}
}

func TestAddToCart_ZeroPriceAllowed(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("free-sample", 0), 3))
	assert.Equal(t, int64(0), s.TotalPrice)
	assert.Equal(t, 1, s.TotalQuantity)
}

// ============================================================================
// RemoveFromCart / ClearCart
// ============================================================================

func TestRemoveFromCart_RemovesWholeLine(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 5))
	require.NoError(t, s.AddToCart(line("p2", 300), 1))

	assert.True(t, s.RemoveFromCart("p1"))

	require.Len(t, s.Lines, 1)
	assert.Equal(t, "p2", s.Lines[0].ProductID)
	assert.Equal(t, 1, s.TotalQuantity)
	assert.Equal(t, int64(300), s.TotalPrice)
}

func TestRemoveFromCart_SecondCallIsNoop(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 2))

	assert.True(t, s.RemoveFromCart("p1"))
	after := s.Clone()
	assert.False(t, s.RemoveFromCart("p1"))
	assert.Equal(t, after, s)
}

func TestRemoveFromCart_GhostOnEmptyCart(t *testing.T) {
	s := NewCartState()

	assert.False(t, s.RemoveFromCart("ghost"))
	assert.Equal(t, NewCartState(), s)
}

func TestClearCart_ResetsEverything(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 2))
	require.NoError(t, s.AddToCart(line("p2", 500), 1))
	require.NoError(t, s.MarkPaymentStarted())
	require.NoError(t, s.MarkPaymentFailed())

	s.ClearCart()

	assert.Empty(t, s.Lines)
	assert.NotNil(t, s.Lines)
	assert.Equal(t, 0, s.TotalQuantity)
	assert.Equal(t, int64(0), s.TotalPrice)
	assert.Equal(t, PaymentIdle, s.Status)
	assert.True(t, s.IsEmpty())
}

// ============================================================================
// Scenarios
// ============================================================================

func TestScenario_MergeThenRemove(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 2))
	require.NoError(t, s.AddToCart(line("p1", 1000), 3))

	got, ok := s.Line("p1")
	require.True(t, ok)
	assert.Equal(t, 5, got.Quantity)
	assert.Equal(t, int64(5000), s.TotalPrice)
	assert.Equal(t, 1, s.TotalQuantity)

	s.RemoveFromCart("p1")

	assert.Empty(t, s.Lines)
	assert.Equal(t, int64(0), s.TotalPrice)
	assert.Equal(t, 0, s.TotalQuantity)
}

func TestScenario_TwoDistinctProducts(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 1))
	require.NoError(t, s.AddToCart(line("p2", 500), 4))

	assert.Equal(t, 2, s.TotalQuantity)
	assert.Equal(t, int64(3000), s.TotalPrice)
}

func TestScenario_DistinctLineCounting(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("A", 100), 3))
	require.NoError(t, s.AddToCart(line("A", 100), 2))

	assert.Equal(t, 1, s.TotalQuantity)
	assert.Equal(t, 5, s.Lines[0].Quantity)
}

// ============================================================================
// Invariants under random command sequences
// ============================================================================

func TestInvariants_RandomSequences(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	ids := []string{"dress", "veil", "cake", "flowers", "rings"}
	prices := map[string]int64{"dress": 150000, "veil": 12000, "cake": 45000, "flowers": 8000, "rings": 99000}

	for run := 0; run < 200; run++ {
		s := NewCartState()
		for step := 0; step < 40; step++ {
			id := ids[rng.IntN(len(ids))]
			switch rng.IntN(10) {
			case 0:
				s.ClearCart()
			case 1, 2, 3:
				s.RemoveFromCart(id)
			case 4:
				_ = s.MarkPaymentStarted()
			default:
				require.NoError(t, s.AddToCart(line(id, prices[id]), rng.IntN(5)))
			}

			require.Equal(t, len(s.Lines), s.TotalQuantity)
			require.Equal(t, sumSubtotals(s), s.TotalPrice)
			seen := map[string]bool{}
			for _, l := range s.Lines {
				require.False(t, seen[l.ProductID], "duplicate line %s", l.ProductID)
				require.Positive(t, l.Quantity)
				seen[l.ProductID] = true
			}
		}
	}
}

// ============================================================================
// Clone / Recalculate
// ============================================================================

func TestClone_IsDeep(t *testing.T) {
	s := NewCartState()
	require.NoError(t, s.AddToCart(line("p1", 1000), 1))

	c := s.Clone()
	c.Lines[0].Quantity = 99
	require.NoError(t, c.AddToCart(line("p2", 1), 1))

	assert.Equal(t, 1, s.Lines[0].Quantity)
	assert.Len(t, s.Lines, 1)
}

func TestRecalculate_FixesTamperedTotals(t *testing.T) {
	s := &CartState{
		Lines: []CartLine{
			{ProductID: "p1", UnitPrice: 1000, Quantity: 2},
			{ProductID: "p2", UnitPrice: 250, Quantity: 4},
		},
		TotalQuantity: 17,
		TotalPrice:    1,
	}

	s.Recalculate()

	assert.Equal(t, 2, s.TotalQuantity)
	assert.Equal(t, int64(3000), s.TotalPrice)
	assert.Equal(t, PaymentIdle, s.Status)

	empty := &CartState{}
	empty.Recalculate()
	assert.NotNil(t, empty.Lines)
}
