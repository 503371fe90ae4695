package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	apperrors "github.com/dralsallum/theKnot-sub000/pkg/errors"
)

// Product is a catalog entry as served by the backend. Price is in cents.
type Product struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	ImageURL    string `json:"image_url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Filter narrows a product list. Zero values impose no constraint.
type Filter struct {
	Category string
	MinPrice int64
	MaxPrice int64
	Query    string
}

// Match reports whether p passes every constraint in f. Category matching
// and the query are case-insensitive; the query is a substring search over
// name and category.
func (f Filter) Match(p Product) bool {
	if f.Category != "" && !strings.EqualFold(f.Category, p.Category) {
		return false
	}
	if f.MinPrice > 0 && p.Price < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && p.Price > f.MaxPrice {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Category), q) {
			return false
		}
	}
	return true
}

// IsZero reports whether f matches everything.
func (f Filter) IsZero() bool {
	return f.Category == "" && f.MinPrice == 0 && f.MaxPrice == 0 && strings.TrimSpace(f.Query) == ""
}

// Apply returns the products that match f, in their original order.
func Apply(products []Product, f Filter) []Product {
	out := make([]Product, 0, len(products))
	for _, p := range products {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}

// Categories returns the distinct categories in first-seen order.
func Categories(products []Product) []string {
	seen := make(map[string]struct{}, len(products))
	var out []string
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		key := strings.ToLower(p.Category)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}

// FilterFromQuery reads category, min_price, max_price and q. Prices are in
// cents and must be non-negative integers with min_price <= max_price.
func FilterFromQuery(q url.Values) (Filter, error) {
	f := Filter{
		Category: strings.TrimSpace(q.Get("category")),
		Query:    q.Get("q"),
	}

	var err error
	if f.MinPrice, err = parsePrice(q, "min_price"); err != nil {
		return Filter{}, err
	}
	if f.MaxPrice, err = parsePrice(q, "max_price"); err != nil {
		return Filter{}, err
	}
	if f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return Filter{}, apperrors.InvalidInput("min_price must not exceed max_price")
	}
	return f, nil
}

func parsePrice(q url.Values, key string) (int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, apperrors.InvalidInput(fmt.Sprintf("%s must be a non-negative integer amount in cents", key))
	}
	return v, nil
}
