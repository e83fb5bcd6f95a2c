package store

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"

	"golang.org/x/xerrors"
)

// Kind tags prefix every encoded key so that the engine's byte order sorts
// numbers before strings before binary keys.
const (
	tagNumber byte = 0x10
	tagString byte = 0x20
	tagBinary byte = 0x30
)

const signBit = uint64(1) << 63

// Key is the primary or index key of a record. The zero value is the
// absent key, which lets callers omit it where the table configuration
// provides one.
type Key struct {
	tag byte
	num float64
	str string
	bin []byte
}

// Number returns a numeric key. Integers are numbers too, like in the
// record documents they are extracted from.
func Number(value float64) Key {
	return Key{tag: tagNumber, num: value}
}

// String returns a textual key.
func String(value string) Key {
	return Key{tag: tagString, str: value}
}

// Binary returns a raw bytes key.
func Binary(value []byte) Key {
	return Key{tag: tagBinary, bin: value}
}

// IsZero returns true when the key is absent.
func (k Key) IsZero() bool {
	return k.tag == 0
}

// String implements fmt.Stringer. It returns a human readable form of the
// key for error messages and logs.
func (k Key) String() string {
	switch k.tag {
	case tagNumber:
		return strconv.FormatFloat(k.num, 'g', -1, 64)
	case tagString:
		return strconv.Quote(k.str)
	case tagBinary:
		return "0x" + hex.EncodeToString(k.bin)
	default:
		return "<none>"
	}
}

// encodeKey returns the order-preserving encoding of the key: the kind tag
// followed by a payload that compares bytewise in key order. Numbers use
// the sign-flipped IEEE 754 big-endian form.
func encodeKey(k Key) ([]byte, error) {
	switch k.tag {
	case tagNumber:
		if math.IsNaN(k.num) {
			return nil, xerrors.New("NaN is not a valid key")
		}

		bits := math.Float64bits(k.num)
		if bits&signBit != 0 {
			bits = ^bits
		} else {
			bits |= signBit
		}

		buf := make([]byte, 9)
		buf[0] = tagNumber
		binary.BigEndian.PutUint64(buf[1:], bits)

		return buf, nil
	case tagString:
		return append([]byte{tagString}, k.str...), nil
	case tagBinary:
		return append([]byte{tagBinary}, k.bin...), nil
	default:
		return nil, xerrors.New("missing key")
	}
}

// decodeKey parses a key previously encoded with encodeKey.
func decodeKey(buf []byte) (Key, error) {
	if len(buf) == 0 {
		return Key{}, xerrors.New("empty key encoding")
	}

	switch buf[0] {
	case tagNumber:
		if len(buf) != 9 {
			return Key{}, xerrors.Errorf("invalid number key length %d", len(buf))
		}

		bits := binary.BigEndian.Uint64(buf[1:])
		if bits&signBit != 0 {
			bits &^= signBit
		} else {
			bits = ^bits
		}

		return Number(math.Float64frombits(bits)), nil
	case tagString:
		return String(string(buf[1:])), nil
	case tagBinary:
		return Binary(append([]byte{}, buf[1:]...)), nil
	default:
		return Key{}, xerrors.Errorf("unknown key tag 0x%x", buf[0])
	}
}

// keyFromValue converts a value extracted from a record document into a
// key. Only numbers and strings can act as keys there.
func keyFromValue(value interface{}) (Key, error) {
	switch v := value.(type) {
	case float64:
		return Number(v), nil
	case string:
		return String(v), nil
	default:
		return Key{}, xerrors.Errorf("value of type %T cannot be used as a key", value)
	}
}

// Range describes a key range. A zero bound leaves that side unbounded,
// and an open flag excludes the bound itself.
type Range struct {
	Lower     Key
	Upper     Key
	LowerOpen bool
	UpperOpen bool
}

// Only returns the range matching exactly the given key.
func Only(key Key) *Range {
	return &Range{Lower: key, Upper: key}
}

// LowerBound returns the range of keys greater than the given key, or
// greater or equal when open is false.
func LowerBound(key Key, open bool) *Range {
	return &Range{Lower: key, LowerOpen: open}
}

// UpperBound returns the range of keys lower than the given key, or lower
// or equal when open is false.
func UpperBound(key Key, open bool) *Range {
	return &Range{Upper: key, UpperOpen: open}
}

// Bound returns the range between the two keys.
func Bound(lower, upper Key, lowerOpen, upperOpen bool) *Range {
	return &Range{
		Lower:     lower,
		Upper:     upper,
		LowerOpen: lowerOpen,
		UpperOpen: upperOpen,
	}
}

// bounds returns the encoded inclusive bounds of the range for the engine
// cursor, alongside the encodings of the open bounds that the iteration
// must skip. A nil range is unbounded.
func (r *Range) bounds() (lower, upper []byte, err error) {
	if r == nil {
		return nil, nil, nil
	}

	if !r.Lower.IsZero() {
		lower, err = encodeKey(r.Lower)
		if err != nil {
			return nil, nil, xerrors.Errorf("invalid lower bound: %v", err)
		}
	}

	if !r.Upper.IsZero() {
		upper, err = encodeKey(r.Upper)
		if err != nil {
			return nil, nil, xerrors.Errorf("invalid upper bound: %v", err)
		}
	}

	return lower, upper, nil
}
