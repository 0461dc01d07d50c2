// Package order holds the synthetic order record exchanged between the
// producer and the consumer, and its fixed text payload format.
package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	MinQuantity = 1
	MaxQuantity = 5

	MinPrice   = 50.0
	PriceRange = 1000.0
)

var (
	ErrMalformedPayload = errors.New("malformed order payload")
)

// DefaultCatalog is the product set orders are drawn from unless configured otherwise.
var DefaultCatalog = []string{"Laptop", "Mouse", "Teclado", "Monitor", "Audífonos"}

// Order is a single synthetic purchase. It is never mutated after creation.
type Order struct {
	OrderID  int
	Product  string
	Quantity int
	Price    float64
}

// String renders the order in the wire format. Key names and field order are
// fixed and the price always carries two decimals.
func (o Order) String() string {
	return fmt.Sprintf(`{"orderId": %d, "producto": %s, "cantidad": %d, "precio": %.2f}`,
		o.OrderID, quoteJSON(o.Product), o.Quantity, o.Price)
}

// quoteJSON renders s as a JSON string literal, keeping non-ASCII text and HTML
// characters as they are
func quoteJSON(s string) string {
	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return `""`
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func (o Order) Payload() []byte {
	return []byte(o.String())
}

func (o Order) Total() float64 {
	return float64(o.Quantity) * o.Price
}

type wireOrder struct {
	OrderID  *int     `json:"orderId"`
	Product  *string  `json:"producto"`
	Quantity *int     `json:"cantidad"`
	Price    *float64 `json:"precio"`
}

// ParsePayload reads an order back from its wire format. All four fields are required.
func ParsePayload(payload []byte) (Order, error) {
	var w wireOrder
	if err := json.Unmarshal(payload, &w); err != nil {
		return Order{}, errors.Join(err, ErrMalformedPayload)
	}
	if w.OrderID == nil || w.Product == nil || w.Quantity == nil || w.Price == nil {
		return Order{}, fmt.Errorf("%w: missing field in %q", ErrMalformedPayload, payload)
	}
	return Order{OrderID: *w.OrderID, Product: *w.Product, Quantity: *w.Quantity, Price: *w.Price}, nil
}
