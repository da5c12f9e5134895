package colgraph

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"math"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Key encoding helpers for bbolt.
// All integer keys use big-endian encoding for proper byte-ordering in B+tree.

// encodeUint64 encodes a uint64 as 8-byte big-endian.
func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

// decodeUint64 decodes 8-byte big-endian to uint64.
func decodeUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// encodeAdjKey creates a composite adjacency key: nodeOffset(8) + relOffset(8).
// This allows efficient prefix scans for all relationships of a given node.
func encodeAdjKey(nodeOff, relOff uint64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[:8], nodeOff)
	binary.BigEndian.PutUint64(buf[8:], relOff)
	return buf
}

// decodeAdjKey decodes a 16-byte adjacency key into node and rel offsets.
func decodeAdjKey(b []byte) (nodeOff, relOff uint64) {
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])
}

// ---------------------------------------------------------------------------
// Primary-key encoding: order-preserving byte keys for the pk index.
// ---------------------------------------------------------------------------

// encodeKey converts a primary-key value of type t into its index key.
// Integers flip the sign bit so that byte order matches numeric order.
func encodeKey(t DataType, v any) ([]byte, error) {
	if v == nil {
		return nil, constraintErrorf("primary key must not be null")
	}
	switch t {
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return nil, constraintErrorf("primary key expects STRING, got %T", v)
		}
		return []byte(s), nil
	case TypeInt64, TypeInt32, TypeInt16, TypeInt8, TypeUint8:
		n, ok := toInt64(v)
		if !ok {
			return nil, constraintErrorf("primary key expects %s, got %T", t, v)
		}
		return encodeUint64(uint64(n) ^ (1 << 63)), nil
	}
	return nil, constraintErrorf("type %s cannot be a primary key", t)
}

// ---------------------------------------------------------------------------
// Cell encoding: one MessagePack value per (column, row offset).
// ---------------------------------------------------------------------------

// encodeValue encodes a value already coerced to its column type.
func encodeValue(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// cellDecoder decodes column cells without allocating a decoder per value.
type cellDecoder struct {
	r   bytes.Reader
	dec *msgpack.Decoder
}

func newCellDecoder() *cellDecoder {
	d := &cellDecoder{}
	d.dec = msgpack.NewDecoder(&d.r)
	return d
}

// decode decodes one cell as type t. NULL cells decode to nil.
func (d *cellDecoder) decode(t DataType, data []byte) (any, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("colgraph: empty cell")
	}
	if data[0] == msgpcode.Nil {
		return nil, nil
	}
	d.r.Reset(data)
	d.dec.Reset(&d.r)
	switch t {
	case TypeString:
		return d.dec.DecodeString()
	case TypeInt64:
		return d.dec.DecodeInt64()
	case TypeInt32:
		return d.dec.DecodeInt32()
	case TypeInt16:
		return d.dec.DecodeInt16()
	case TypeInt8:
		return d.dec.DecodeInt8()
	case TypeUint8:
		return d.dec.DecodeUint8()
	case TypeDouble:
		return d.dec.DecodeFloat64()
	case TypeBool:
		return d.dec.DecodeBool()
	}
	return nil, fmt.Errorf("colgraph: cannot decode type %s", t)
}

// ---------------------------------------------------------------------------
// Framed records: catalog entries and other metadata.
// ---------------------------------------------------------------------------

// recordMagic marks a CRC-protected MessagePack record.
const recordMagic byte = 0x02

// crc32Table is the precomputed Castagnoli CRC32 table (hardware-accelerated on modern CPUs).
var crc32Table = crc32.MakeTable(crc32.Castagnoli)

// encodeRecord serializes v to MessagePack with a CRC32 checksum.
// Format: magic(1) + msgpack_data + crc32(4)
func encodeRecord(v any) ([]byte, error) {
	raw, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 1+len(raw)+4)
	buf[0] = recordMagic
	copy(buf[1:], raw)
	checksum := crc32.Checksum(buf[:1+len(raw)], crc32Table)
	binary.BigEndian.PutUint32(buf[1+len(raw):], checksum)
	return buf, nil
}

// decodeRecord verifies the checksum and deserializes into v.
func decodeRecord(data []byte, v any) error {
	if len(data) < 5 || data[0] != recordMagic {
		return fmt.Errorf("colgraph: malformed record (%d bytes)", len(data))
	}
	payload := data[:len(data)-4]
	stored := binary.BigEndian.Uint32(data[len(data)-4:])
	actual := crc32.Checksum(payload, crc32Table)
	if stored != actual {
		return fmt.Errorf("colgraph: record checksum mismatch (stored=%08x actual=%08x)", stored, actual)
	}
	return msgpack.Unmarshal(payload[1:], v)
}

// groupKey builds a map key identifying a tuple of group-by values.
// Numbers are normalised so that 1 (INT64) and 1 (INT32) land in one group.
func groupKey(vals []any) (string, error) {
	norm := make([]any, len(vals))
	for i, v := range vals {
		switch n := v.(type) {
		case float64:
			if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
				norm[i] = int64(n)
			} else {
				norm[i] = n
			}
		default:
			if iv, ok := toInt64(v); ok {
				norm[i] = iv
			} else {
				norm[i] = formatGroupValue(v)
			}
		}
	}
	b, err := msgpack.Marshal(norm)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// formatGroupValue maps records to their identity so that grouping by a
// node variable groups by node.
func formatGroupValue(v any) any {
	switch r := v.(type) {
	case *NodeRecord:
		return fmt.Sprintf("node:%s:%d", r.Table, r.Offset)
	case *RelRecord:
		return fmt.Sprintf("rel:%s:%d", r.Table, r.Offset)
	}
	return v
}
