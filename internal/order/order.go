// Package order defines the fixed-layout trade order record carried
// through the pipeline. The type is a plain value with no heap data so
// copies through the ring and into batches never allocate.
package order

import (
	"bytes"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side identifies the order direction.
type Side uint8

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

// Status is carried through the pipeline but never transitioned by it.
type Status uint8

const (
	StatusPending   Status = 0
	StatusFilled    Status = 1
	StatusCancelled Status = 2
	StatusRejected  Status = 3
)

// SymbolLen is the size of the fixed symbol buffer. The last byte is
// always NUL, so at most SymbolLen-1 characters are significant.
const SymbolLen = 16

// Order is the record moved from producers to consumers. Layout is fixed
// and alignment-friendly: 42 significant bytes, padded to 48 by the
// compiler, well inside a single cache line.
type Order struct {
	ID          uint64
	TimestampNS uint64
	Symbol      [SymbolLen]byte
	Quantity    uint32
	PriceCents  uint32
	Side        Side
	Status      Status
}

// New creates an order stamped with the current wall clock. Symbols longer
// than SymbolLen-1 bytes are truncated.
func New(id uint64, symbol string, side Side, priceCents uint32, quantity uint32) Order {
	o := Order{
		ID:          id,
		TimestampNS: uint64(time.Now().UnixNano()),
		Quantity:    quantity,
		PriceCents:  priceCents,
		Side:        side,
		Status:      StatusPending,
	}
	o.SetSymbol(symbol)
	return o
}

// SymbolString returns the symbol with NUL padding stripped.
func (o *Order) SymbolString() string {
	if i := bytes.IndexByte(o.Symbol[:], 0); i >= 0 {
		return string(o.Symbol[:i])
	}
	return string(o.Symbol[:])
}

// SetSymbol copies sym into the fixed buffer, truncating to SymbolLen-1
// bytes and NUL-padding the remainder.
func (o *Order) SetSymbol(sym string) {
	o.Symbol = [SymbolLen]byte{}
	copy(o.Symbol[:SymbolLen-1], sym)
}

// Timestamp returns the creation time.
func (o *Order) Timestamp() time.Time {
	return time.Unix(0, int64(o.TimestampNS))
}

// Price returns the price as an exact decimal, for reporting only. The
// hot path works in integer cents.
func (o *Order) Price() decimal.Decimal {
	return decimal.New(int64(o.PriceCents), -2)
}

// ValueCents returns quantity times price in cents.
func (o *Order) ValueCents() uint64 {
	return uint64(o.Quantity) * uint64(o.PriceCents)
}

// Value returns the order value as an exact decimal.
func (o *Order) Value() decimal.Decimal {
	return decimal.New(int64(o.ValueCents()), -2)
}

// Valid reports whether the record has a usable identity, quantity, price
// and symbol. A zero ID is never valid.
func (o *Order) Valid() bool {
	return o.ID != 0 && o.Quantity > 0 && o.PriceCents > 0 && o.Symbol[0] != 0
}

func (o *Order) IsBuy() bool  { return o.Side == SideBuy }
func (o *Order) IsSell() bool { return o.Side == SideSell }

// Equal and Less define identity and ordering by ID only.
func (o *Order) Equal(other *Order) bool { return o.ID == other.ID }
func (o *Order) Less(other *Order) bool  { return o.ID < other.ID }

// String formats the order for logs and reports.
func (o *Order) String() string {
	return fmt.Sprintf("Order[%d] %s %s %d@%s status=%s ts=%d",
		o.ID, o.SymbolString(), o.Side, o.Quantity, o.Price().StringFixed(2), o.Status, o.TimestampNS)
}

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	case StatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}
