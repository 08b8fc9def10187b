package order

import (
	"math/rand"
)

// DefaultSymbols is the instrument set used by synthetic producers.
var DefaultSymbols = []string{"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA"}

// Generator produces synthetic orders with monotonically assigned IDs.
// Each producer owns exactly one Generator; it is not safe for concurrent
// use, matching the single-producer discipline of the ring.
type Generator struct {
	rng     *rand.Rand
	symbols []string
	nextID  uint64
}

// NewGenerator creates a generator whose IDs start at base+1 so that
// different producers draw from disjoint ID ranges and zero is never
// issued.
func NewGenerator(base uint64, seed int64, symbols []string) *Generator {
	if len(symbols) == 0 {
		symbols = DefaultSymbols
	}
	return &Generator{
		rng:     rand.New(rand.NewSource(seed)),
		symbols: symbols,
		nextID:  base,
	}
}

// Next returns a fresh order: random symbol, price uniform in
// [$100,$200), quantity uniform in [1,1000], random side.
func (g *Generator) Next() Order {
	g.nextID++
	sym := g.symbols[g.rng.Intn(len(g.symbols))]
	price := uint32(10000 + g.rng.Intn(10000)) // cents
	qty := uint32(1 + g.rng.Intn(1000))
	side := Side(g.rng.Intn(2))
	return New(g.nextID, sym, side, price, qty)
}
