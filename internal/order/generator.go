package order

import (
	"errors"
	"math/rand"
	"time"
)

var (
	ErrEmptyCatalog = errors.New("product catalog is empty")
)

// Generator produces orders with sequential ids and random contents.
// It is not safe for concurrent use.
type Generator struct {
	catalog []string
	rnd     *rand.Rand
	nextId  int
}

// NewGenerator creates a generator over catalog. A zero seed picks a time based one.
func NewGenerator(catalog []string, seed int64) (*Generator, error) {
	if len(catalog) == 0 {
		return nil, ErrEmptyCatalog
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	products := make([]string, len(catalog))
	copy(products, catalog)

	return &Generator{catalog: products, rnd: rand.New(rand.NewSource(seed)), nextId: 1}, nil
}

func (g *Generator) Next() Order {
	o := Order{
		OrderID:  g.nextId,
		Product:  g.catalog[g.rnd.Intn(len(g.catalog))],
		Quantity: MinQuantity + g.rnd.Intn(MaxQuantity-MinQuantity+1),
		Price:    MinPrice + g.rnd.Float64()*PriceRange,
	}
	g.nextId++
	return o
}

func (g *Generator) Generate(n int) []Order {
	orders := make([]Order, 0, n)
	for i := 0; i < n; i++ {
		orders = append(orders, g.Next())
	}
	return orders
}
