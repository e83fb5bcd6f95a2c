package store

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKey_RoundTrip(t *testing.T) {
	keys := []Key{
		Number(0),
		Number(1),
		Number(-1),
		Number(1.5),
		Number(math.MaxFloat64),
		Number(math.Inf(1)),
		String(""),
		String("a"),
		String("héllo"),
		Binary(nil),
		Binary([]byte{0x00, 0xff}),
	}

	for _, key := range keys {
		buf, err := encodeKey(key)
		require.NoError(t, err)

		decoded, err := decodeKey(buf)
		require.NoError(t, err)
		require.Equal(t, key.String(), decoded.String())
	}
}

func TestKey_Encode_Failures(t *testing.T) {
	_, err := encodeKey(Key{})
	require.EqualError(t, err, "missing key")

	_, err = encodeKey(Number(math.NaN()))
	require.EqualError(t, err, "NaN is not a valid key")
}

func TestKey_Decode_Failures(t *testing.T) {
	_, err := decodeKey(nil)
	require.EqualError(t, err, "empty key encoding")

	_, err = decodeKey([]byte{tagNumber, 1, 2})
	require.EqualError(t, err, "invalid number key length 3")

	_, err = decodeKey([]byte{0xff})
	require.EqualError(t, err, "unknown key tag 0xff")
}

// The byte order of the encodings must match the semantic key order:
// numbers in numeric order, then strings, then binary keys.
func TestKey_EncodingPreservesOrder(t *testing.T) {
	ordered := []Key{
		Number(math.Inf(-1)),
		Number(-12.5),
		Number(-1),
		Number(0),
		Number(0.5),
		Number(1),
		Number(2),
		Number(1000),
		Number(math.Inf(1)),
		String(""),
		String("a"),
		String("ab"),
		String("b"),
		Binary(nil),
		Binary([]byte{0x00}),
		Binary([]byte{0x01}),
	}

	encoded := make([][]byte, len(ordered))
	for i, key := range ordered {
		buf, err := encodeKey(key)
		require.NoError(t, err)
		encoded[i] = buf
	}

	require.True(t, sort.SliceIsSorted(encoded, func(i, j int) bool {
		return bytes.Compare(encoded[i], encoded[j]) < 0
	}))
}

func TestKey_String(t *testing.T) {
	require.Equal(t, "1", Number(1).String())
	require.Equal(t, "1.5", Number(1.5).String())
	require.Equal(t, `"a"`, String("a").String())
	require.Equal(t, "0x00ff", Binary([]byte{0x00, 0xff}).String())
	require.Equal(t, "<none>", Key{}.String())
}

func TestKey_FromValue(t *testing.T) {
	key, err := keyFromValue(float64(3))
	require.NoError(t, err)
	require.Equal(t, Number(3), key)

	key, err = keyFromValue("a")
	require.NoError(t, err)
	require.Equal(t, String("a"), key)

	_, err = keyFromValue(true)
	require.EqualError(t, err, "value of type bool cannot be used as a key")
}

func TestRange_Bounds(t *testing.T) {
	var rng *Range

	lower, upper, err := rng.bounds()
	require.NoError(t, err)
	require.Nil(t, lower)
	require.Nil(t, upper)

	lower, upper, err = Only(Number(1)).bounds()
	require.NoError(t, err)
	require.Equal(t, lower, upper)
	require.NotNil(t, lower)

	lower, upper, err = LowerBound(Number(1), true).bounds()
	require.NoError(t, err)
	require.NotNil(t, lower)
	require.Nil(t, upper)

	lower, upper, err = UpperBound(Number(1), false).bounds()
	require.NoError(t, err)
	require.Nil(t, lower)
	require.NotNil(t, upper)

	_, _, err = Bound(Number(math.NaN()), Number(1), false, false).bounds()
	require.EqualError(t, err, "invalid lower bound: NaN is not a valid key")

	_, _, err = Bound(Number(1), Number(math.NaN()), false, false).bounds()
	require.EqualError(t, err, "invalid upper bound: NaN is not a valid key")
}
