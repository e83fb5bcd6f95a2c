package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSchema_ValueAtPath(t *testing.T) {
	raw := []byte(`{"id":1,"author":{"name":"doe"},"tags":["a"]}`)

	key, found, err := valueAtPath(raw, "id")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Number(1), key)

	key, found, err = valueAtPath(raw, "author.name")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, String("doe"), key)

	_, found, err = valueAtPath(raw, "author.age")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = valueAtPath(raw, "id.sub")
	require.NoError(t, err)
	require.False(t, found)

	_, _, err = valueAtPath(raw, "tags")
	require.EqualError(t, err,
		"invalid value at path 'tags': value of type []interface {} cannot be used as a key")

	_, _, err = valueAtPath([]byte("{"), "id")
	require.Error(t, err)
}

func TestSchema_SetValueAtPath(t *testing.T) {
	out, err := setValueAtPath([]byte(`{"name":"a"}`), "id", float64(1))
	require.NoError(t, err)

	key, found, err := valueAtPath(out, "id")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Number(1), key)

	out, err = setValueAtPath([]byte(`{}`), "author.id", float64(2))
	require.NoError(t, err)

	key, found, err = valueAtPath(out, "author.id")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, Number(2), key)

	_, err = setValueAtPath([]byte("{"), "id", float64(1))
	require.Error(t, err)
}

func TestSchema_CheckName(t *testing.T) {
	require.NoError(t, checkName("table", "items"))

	err := checkName("table", "")
	require.EqualError(t, err, "table name is empty")

	err = checkName("index", "by:name")
	require.EqualError(t, err, "index name 'by:name' contains ':'")
}

func TestSchema_IndexEntry(t *testing.T) {
	entry := indexEntry([]byte{0xaa}, []byte{0xbb})
	require.Equal(t, []byte{0x01, 0xaa, 0xbb}, entry)

	prefix := indexPrefix([]byte{0xaa})
	require.Equal(t, []byte{0x01, 0xaa}, prefix)
}
