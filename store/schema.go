package store

import (
	"encoding/binary"
	"encoding/json"
	"sort"
	"strings"

	"github.com/keyrec/keyrec/kv"
	"golang.org/x/xerrors"
)

// The schema document lives in its own bucket so that it never collides
// with table data.
var (
	metaBucket = []byte("_meta")
	schemaKey  = []byte("schema")
)

// schema is the document persisted in the meta bucket. It is written only
// by upgrades and read once at open.
type schema struct {
	Version uint32                 `json:"version"`
	Tables  map[string]tableSchema `json:"tables,omitempty"`
}

type tableSchema struct {
	KeyPath       string                 `json:"keyPath,omitempty"`
	AutoIncrement bool                   `json:"autoIncrement,omitempty"`
	Indexes       map[string]indexSchema `json:"indexes,omitempty"`
}

type indexSchema struct {
	FieldPath string `json:"fieldPath"`
	Unique    bool   `json:"unique,omitempty"`
}

func (s schema) tableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// loadSchema reads the schema document, or returns the empty schema at
// version zero for a database that has never been upgraded.
func loadSchema(tx kv.ReadableTx) (schema, error) {
	sc := schema{Tables: map[string]tableSchema{}}

	bucket := tx.GetBucket(metaBucket)
	if bucket == nil {
		return sc, nil
	}

	data := bucket.Get(schemaKey)
	if data == nil {
		return sc, nil
	}

	err := json.Unmarshal(data, &sc)
	if err != nil {
		return sc, xerrors.Errorf("failed to decode schema: %v", err)
	}

	if sc.Tables == nil {
		sc.Tables = map[string]tableSchema{}
	}

	return sc, nil
}

// saveSchema writes the schema document.
func saveSchema(tx kv.WritableTx, sc schema) error {
	data, err := json.Marshal(sc)
	if err != nil {
		return xerrors.Errorf("failed to encode schema: %v", err)
	}

	bucket, err := tx.GetBucketOrCreate(metaBucket)
	if err != nil {
		return xerrors.Errorf("failed to open meta bucket: %v", err)
	}

	err = bucket.Set(schemaKey, data)
	if err != nil {
		return xerrors.Errorf("failed to write schema: %v", err)
	}

	return nil
}

// Table names are forbidden to contain the separator so that the bucket
// names below stay unambiguous.
func recBucket(table string) []byte {
	return []byte("rec:" + table)
}

func idxBucket(table, index string) []byte {
	return []byte("idx:" + table + ":" + index)
}

// checkName validates a table or index name before any engine call.
func checkName(kind, name string) error {
	if name == "" {
		return xerrors.Errorf("%s name is empty", kind)
	}

	if strings.Contains(name, ":") {
		return xerrors.Errorf("%s name '%s' contains ':'", kind, name)
	}

	return nil
}

// indexPrefix returns the length-prefixed encoding of an index key. The
// length prefix keeps lookups exact: an entry matches the prefix only when
// its index key is byte for byte the one looked up.
func indexPrefix(encKey []byte) []byte {
	buf := make([]byte, binary.MaxVarintLen64, binary.MaxVarintLen64+len(encKey))
	n := binary.PutUvarint(buf, uint64(len(encKey)))

	return append(buf[:n], encKey...)
}

// indexEntry returns the bucket key of one index entry, the prefix of the
// index key followed by the encoded primary key.
func indexEntry(encKey, encPK []byte) []byte {
	return append(indexPrefix(encKey), encPK...)
}

// valueAtPath extracts the key at the dot-separated field path of the
// record. It reports false when the path is absent, which is not an error:
// such a record simply has no entry in the index.
func valueAtPath(raw []byte, fieldPath string) (Key, bool, error) {
	var doc map[string]interface{}

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return Key{}, false, xerrors.Errorf("failed to decode record: %v", err)
	}

	var current interface{} = doc

	for _, segment := range strings.Split(fieldPath, ".") {
		object, ok := current.(map[string]interface{})
		if !ok {
			return Key{}, false, nil
		}

		current, ok = object[segment]
		if !ok {
			return Key{}, false, nil
		}
	}

	key, err := keyFromValue(current)
	if err != nil {
		return Key{}, false, xerrors.Errorf("invalid value at path '%s': %v", fieldPath, err)
	}

	return key, true, nil
}

// setValueAtPath returns the record with the value stored at the
// dot-separated field path, creating intermediate objects as needed. It is
// used to write a generated key back into the record.
func setValueAtPath(raw []byte, fieldPath string, value interface{}) ([]byte, error) {
	var doc map[string]interface{}

	err := json.Unmarshal(raw, &doc)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode record: %v", err)
	}

	segments := strings.Split(fieldPath, ".")
	object := doc

	for _, segment := range segments[:len(segments)-1] {
		next, ok := object[segment].(map[string]interface{})
		if !ok {
			next = map[string]interface{}{}
			object[segment] = next
		}

		object = next
	}

	object[segments[len(segments)-1]] = value

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, xerrors.Errorf("failed to encode record: %v", err)
	}

	return out, nil
}
