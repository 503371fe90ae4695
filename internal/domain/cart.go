package domain

import (
	"fmt"
	"strings"

	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

// CartLine is one aggregated entry in the cart for a single product. Name,
// ImageURL and Category are carried for display only.
type CartLine struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Category  string `json:"category,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// Subtotal returns UnitPrice * Quantity in cents.
func (l CartLine) Subtotal() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// CartState is the cart aggregate.
//
// TotalQuantity counts distinct lines, not units. TotalPrice always equals the
// sum of line subtotals because a line keeps the unit price it was created
// with.
type CartState struct {
	Lines         []CartLine    `json:"lines"`
	TotalQuantity int           `json:"total_quantity"`
	TotalPrice    int64         `json:"total_price"`
	Status        PaymentStatus `json:"status"`
}

// NewCartState returns an empty cart in the idle status.
func NewCartState() *CartState {
	return &CartState{Lines: []CartLine{}, Status: PaymentIdle}
}

// FindLineIndex returns the index of the line for productID, or -1.
func (s *CartState) FindLineIndex(productID string) int {
	for i := range s.Lines {
		if s.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Line returns a copy of the line for productID.
func (s *CartState) Line(productID string) (CartLine, bool) {
	if i := s.FindLineIndex(productID); i >= 0 {
		return s.Lines[i], true
	}
	return CartLine{}, false
}

// AddToCart merges quantity units of item into the cart. A quantity of 0
// means the caller omitted it and adds one unit. A product already in the
// cart keeps its stored unit price; item.UnitPrice is ignored in that case.
func (s *CartState) AddToCart(item CartLine, quantity int) error {
	if err := validateAdd(item, quantity); err != nil {
		return err
	}
	if quantity == 0 {
		quantity = 1
	}

	if i := s.FindLineIndex(item.ProductID); i >= 0 {
		s.Lines[i].Quantity += quantity
		s.TotalPrice += s.Lines[i].UnitPrice * int64(quantity)
		return nil
	}

	item.Quantity = quantity
	s.Lines = append(s.Lines, item)
	s.TotalQuantity++
	s.TotalPrice += item.Subtotal()
	return nil
}

func validateAdd(item CartLine, quantity int) error {
	switch {
	case strings.TrimSpace(item.ProductID) == "":
		return apperrors.InvalidInput("product_id is required")
	case item.UnitPrice < 0:
		return apperrors.InvalidInput(fmt.Sprintf("unit_price must not be negative, got %d", item.UnitPrice))
	case quantity < 0:
		return apperrors.InvalidInput(fmt.Sprintf("quantity must not be negative, got %d", quantity))
	}
	return nil
}

// RemoveFromCart deletes the whole line for productID regardless of its
// quantity. It reports whether a line was removed; an unknown id is a no-op.
func (s *CartState) RemoveFromCart(productID string) bool {
	i := s.FindLineIndex(productID)
	if i < 0 {
		return false
	}
	s.TotalQuantity--
	s.TotalPrice -= s.Lines[i].Subtotal()
	s.Lines = append(s.Lines[:i], s.Lines[i+1:]...)
	return true
}

// ClearCart resets lines, totals and status.
func (s *CartState) ClearCart() {
	s.Lines = []CartLine{}
	s.TotalQuantity = 0
	s.TotalPrice = 0
	s.Status = PaymentIdle
}

// IsEmpty reports whether the cart holds no lines.
func (s *CartState) IsEmpty() bool {
	return len(s.Lines) == 0
}

// Clone returns a deep copy.
func (s *CartState) Clone() *CartState {
	out := *s
	out.Lines = make([]CartLine, len(s.Lines))
	copy(out.Lines, s.Lines)
	return &out
}

// Recalculate rebuilds the aggregates from the lines. It is applied to state
// loaded from storage, where the stored totals cannot be trusted.
func (s *CartState) Recalculate() {
	if s.Lines == nil {
		s.Lines = []CartLine{}
	}
	s.TotalQuantity = len(s.Lines)
	s.TotalPrice = 0
	for _, l := range s.Lines {
		s.TotalPrice += l.Subtotal()
	}
	if s.Status == "" {
		s.Status = PaymentIdle
	}
}
