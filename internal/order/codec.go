package order

import (
	"encoding/binary"
	"fmt"
)

// WireSize is the length of the binary representation: every field in
// declaration order, little-endian, plus two reserved bytes kept for
// alignment parity with the in-memory layout.
const WireSize = 44

// MarshalBinary encodes the order into its fixed wire layout.
func (o *Order) MarshalBinary() ([]byte, error) {
	buf := make([]byte, WireSize)
	binary.LittleEndian.PutUint64(buf[0:8], o.ID)
	binary.LittleEndian.PutUint64(buf[8:16], o.TimestampNS)
	copy(buf[16:32], o.Symbol[:])
	binary.LittleEndian.PutUint32(buf[32:36], o.Quantity)
	binary.LittleEndian.PutUint32(buf[36:40], o.PriceCents)
	buf[40] = byte(o.Side)
	buf[41] = byte(o.Status)
	// buf[42:44] reserved, zero
	return buf, nil
}

// UnmarshalBinary decodes an order from its fixed wire layout.
func (o *Order) UnmarshalBinary(data []byte) error {
	if len(data) != WireSize {
		return fmt.Errorf("order: wire length %d, want %d", len(data), WireSize)
	}
	o.ID = binary.LittleEndian.Uint64(data[0:8])
	o.TimestampNS = binary.LittleEndian.Uint64(data[8:16])
	copy(o.Symbol[:], data[16:32])
	o.Quantity = binary.LittleEndian.Uint32(data[32:36])
	o.PriceCents = binary.LittleEndian.Uint32(data[36:40])
	o.Side = Side(data[40])
	o.Status = Status(data[41])
	return nil
}
