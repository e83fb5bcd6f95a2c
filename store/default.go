package store

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/keyrec/keyrec"
	"github.com/keyrec/keyrec/kv"
	"github.com/keyrec/keyrec/promise"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"golang.org/x/xerrors"
)

// errStop stops an iteration early without reporting a failure.
var errStop = xerrors.New("stop iteration")

// Open opens the database file at the given path with the requested
// version, which must be greater than zero. The upgrade callback runs when
// the requested version is higher than the stored one, or when the file is
// new, inside the transaction that persists the new schema. Opening at a
// version lower than the stored one fails.
func Open(path string, version uint32, fn UpgradeFunc) *promise.Promise[Store] {
	return promise.Go(func() (Store, error) {
		return open(path, version, fn)
	})
}

// Delete removes the database file. Deleting a missing database succeeds.
func Delete(path string) *promise.Promise[promise.Void] {
	return promise.Go(func() (promise.Void, error) {
		err := os.Remove(path)
		if err != nil && !os.IsNotExist(err) {
			return promise.Void{}, xerrors.Errorf("failed to delete database: %v", err)
		}

		return promise.Void{}, nil
	})
}

func open(path string, version uint32, fn UpgradeFunc) (Store, error) {
	if version == 0 {
		return nil, xerrors.New("version must be greater than zero")
	}

	db, err := kv.New(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open engine: %v", err)
	}

	var sc schema

	err = db.View(func(tx kv.ReadableTx) error {
		sc, err = loadSchema(tx)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	if version < sc.Version {
		db.Close()
		return nil, xerrors.Errorf("version %d is lower than the stored version %d",
			version, sc.Version)
	}

	logger := keyrec.Logger.With().
		Str("path", path).
		Stringer("store", xid.New()).
		Logger()

	if version > sc.Version {
		logger.Info().
			Uint32("from", sc.Version).
			Uint32("to", version).
			Msg("upgrading store")

		err = db.Update(func(tx kv.WritableTx) error {
			up := &upgradeTx{tx: tx, schema: &sc, old: sc.Version, new: version}

			var cbErr error
			if fn != nil {
				cbErr = fn(up)
			}

			up.done = true

			if cbErr != nil {
				return xerrors.Errorf("upgrade failed: %v", cbErr)
			}

			sc.Version = version

			return saveSchema(tx, sc)
		})
		if err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &dbStore{
		db:     db,
		schema: sc,
		logger: logger,
	}

	logger.Debug().Msg("store opened")

	return s, nil
}

// dbStore is the facade over an open database. The schema is loaded once
// at open and never changes afterwards, so concurrent operations only
// share the engine handle.
//
// - implements store.Store
type dbStore struct {
	db     kv.DB
	schema schema
	logger zerolog.Logger
}

// Get implements store.Store. It returns the record stored under the key,
// or nil when there is none.
func (s *dbStore) Get(table string, key Key) *promise.Promise[Record] {
	_, err := s.table(table)
	if err != nil {
		return promise.Rejected[Record](err)
	}

	encKey, err := encodeKey(key)
	if err != nil {
		return promise.Rejected[Record](xerrors.Errorf("invalid key: %v", err))
	}

	return promise.Go(func() (Record, error) {
		var record Record

		err := s.db.View(func(tx kv.ReadableTx) error {
			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			value := bucket.Get(encKey)
			if value != nil {
				record = append(Record{}, value...)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}

		return record, nil
	})
}

// GetAll implements store.Store. It returns the records within the range
// in key order.
func (s *dbStore) GetAll(table string, rng *Range, limit int) *promise.Promise[[]Record] {
	_, err := s.table(table)
	if err != nil {
		return promise.Rejected[[]Record](err)
	}

	lower, upper, err := rng.bounds()
	if err != nil {
		return promise.Rejected[[]Record](err)
	}

	return promise.Go(func() ([]Record, error) {
		out := []Record{}

		err := s.db.View(func(tx kv.ReadableTx) error {
			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			return ascend(bucket, rng, lower, upper, func(k, v []byte) error {
				out = append(out, append(Record{}, v...))

				if limit > 0 && len(out) == limit {
					return errStop
				}

				return nil
			})
		})
		if err != nil {
			return nil, err
		}

		return out, nil
	})
}

// GetAllKeys implements store.Store. It returns the primary keys within
// the range in key order.
func (s *dbStore) GetAllKeys(table string, rng *Range, limit int) *promise.Promise[[]Key] {
	_, err := s.table(table)
	if err != nil {
		return promise.Rejected[[]Key](err)
	}

	lower, upper, err := rng.bounds()
	if err != nil {
		return promise.Rejected[[]Key](err)
	}

	return promise.Go(func() ([]Key, error) {
		out := []Key{}

		err := s.db.View(func(tx kv.ReadableTx) error {
			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			return ascend(bucket, rng, lower, upper, func(k, v []byte) error {
				key, err := decodeKey(k)
				if err != nil {
					return err
				}

				out = append(out, key)

				if limit > 0 && len(out) == limit {
					return errStop
				}

				return nil
			})
		})
		if err != nil {
			return nil, err
		}

		return out, nil
	})
}

// GetIndex implements store.Store. It returns the first record whose
// indexed field equals the key, or nil when none matches.
func (s *dbStore) GetIndex(table, index string, key Key) *promise.Promise[Record] {
	ts, err := s.table(table)
	if err != nil {
		return promise.Rejected[Record](err)
	}

	err = checkName("index", index)
	if err != nil {
		return promise.Rejected[Record](err)
	}

	if _, found := ts.Indexes[index]; !found {
		return promise.Rejected[Record](xerrors.Errorf(
			"index '%s' not found on table '%s'", index, table))
	}

	encKey, err := encodeKey(key)
	if err != nil {
		return promise.Rejected[Record](xerrors.Errorf("invalid key: %v", err))
	}

	return promise.Go(func() (Record, error) {
		var record Record

		err := s.db.View(func(tx kv.ReadableTx) error {
			indexes := tx.GetBucket(idxBucket(table, index))
			if indexes == nil {
				return xerrors.Errorf("index '%s' not found on table '%s'", index, table)
			}

			var encPK []byte

			err := indexes.Scan(indexPrefix(encKey), func(k, v []byte) error {
				encPK = append([]byte{}, v...)
				return errStop
			})
			if err != nil && err != errStop {
				return err
			}

			if encPK == nil {
				return nil
			}

			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			value := bucket.Get(encPK)
			if value != nil {
				record = append(Record{}, value...)
			}

			return nil
		})
		if err != nil {
			return nil, err
		}

		return record, nil
	})
}

// Insert implements store.Store. It stores the record and returns its
// primary key, failing when the key or a unique index value is taken.
func (s *dbStore) Insert(table string, value interface{}, key Key) *promise.Promise[Key] {
	return s.write(table, value, key, false)
}

// Put implements store.Store. It stores the record, overwriting any record
// with the same primary key.
func (s *dbStore) Put(table string, value interface{}, key Key) *promise.Promise[Key] {
	return s.write(table, value, key, true)
}

func (s *dbStore) write(table string, value interface{}, key Key, overwrite bool) *promise.Promise[Key] {
	ts, err := s.table(table)
	if err != nil {
		return promise.Rejected[Key](err)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return promise.Rejected[Key](xerrors.Errorf("failed to encode record: %v", err))
	}

	return promise.Go(func() (Key, error) {
		var pk Key

		err := s.db.Update(func(tx kv.WritableTx) error {
			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			rec := raw

			pk, rec, err = resolveKey(bucket, ts, rec, key)
			if err != nil {
				return err
			}

			encPK, err := encodeKey(pk)
			if err != nil {
				return xerrors.Errorf("invalid key: %v", err)
			}

			existing := bucket.Get(encPK)

			if existing != nil && !overwrite {
				return xerrors.Errorf("record %v already exists in table '%s'", pk, table)
			}

			if existing != nil {
				err = removeIndexEntries(tx, table, ts, existing, encPK)
				if err != nil {
					return err
				}
			}

			err = addIndexEntries(tx, table, ts, rec, encPK)
			if err != nil {
				return err
			}

			return bucket.Set(encPK, rec)
		})
		if err != nil {
			return Key{}, err
		}

		return pk, nil
	})
}

// Delete implements store.Store. It removes the record stored under the
// key, along with its index entries.
func (s *dbStore) Delete(table string, key Key) *promise.Promise[promise.Void] {
	ts, err := s.table(table)
	if err != nil {
		return promise.Rejected[promise.Void](err)
	}

	encKey, err := encodeKey(key)
	if err != nil {
		return promise.Rejected[promise.Void](xerrors.Errorf("invalid key: %v", err))
	}

	return promise.Go(func() (promise.Void, error) {
		err := s.db.Update(func(tx kv.WritableTx) error {
			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			existing := bucket.Get(encKey)
			if existing == nil {
				return nil
			}

			err = removeIndexEntries(tx, table, ts, existing, encKey)
			if err != nil {
				return err
			}

			return bucket.Delete(encKey)
		})

		return promise.Void{}, err
	})
}

// Clear implements store.Store. It removes all the records of the table
// and empties its indexes. The table sequence is preserved.
func (s *dbStore) Clear(table string) *promise.Promise[promise.Void] {
	ts, err := s.table(table)
	if err != nil {
		return promise.Rejected[promise.Void](err)
	}

	return promise.Go(func() (promise.Void, error) {
		err := s.db.Update(func(tx kv.WritableTx) error {
			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			err = clearBucket(bucket)
			if err != nil {
				return err
			}

			for name := range ts.Indexes {
				indexes := tx.GetBucket(idxBucket(table, name))
				if indexes == nil {
					return xerrors.Errorf("index '%s' not found on table '%s'", name, table)
				}

				err = clearBucket(indexes)
				if err != nil {
					return err
				}
			}

			return nil
		})

		return promise.Void{}, err
	})
}

// Count implements store.Store. It returns the number of records within
// the range.
func (s *dbStore) Count(table string, rng *Range) *promise.Promise[int] {
	_, err := s.table(table)
	if err != nil {
		return promise.Rejected[int](err)
	}

	lower, upper, err := rng.bounds()
	if err != nil {
		return promise.Rejected[int](err)
	}

	return promise.Go(func() (int, error) {
		count := 0

		err := s.db.View(func(tx kv.ReadableTx) error {
			bucket, err := s.records(tx, table)
			if err != nil {
				return err
			}

			return ascend(bucket, rng, lower, upper, func(k, v []byte) error {
				count++
				return nil
			})
		})
		if err != nil {
			return 0, err
		}

		return count, nil
	})
}

// Tables implements store.Store. It returns the sorted table names.
func (s *dbStore) Tables() []string {
	return s.schema.tableNames()
}

// Close implements store.Store. It closes the engine.
func (s *dbStore) Close() error {
	err := s.db.Close()
	if err != nil {
		return xerrors.Errorf("failed to close engine: %v", err)
	}

	s.logger.Debug().Msg("store closed")

	return nil
}

func (s *dbStore) table(name string) (tableSchema, error) {
	err := checkName("table", name)
	if err != nil {
		return tableSchema{}, err
	}

	ts, found := s.schema.Tables[name]
	if !found {
		return tableSchema{}, xerrors.Errorf("table '%s' not found", name)
	}

	return ts, nil
}

func (s *dbStore) records(tx kv.ReadableTx, table string) (kv.Bucket, error) {
	bucket := tx.GetBucket(recBucket(table))
	if bucket == nil {
		return nil, xerrors.Errorf("table '%s' not found", table)
	}

	return bucket, nil
}

// ascend iterates the bucket within the range, skipping the bounds the
// range declares open, and swallows errStop.
func ascend(bucket kv.Bucket, rng *Range, lower, upper []byte, fn func(k, v []byte) error) error {
	err := bucket.Ascend(lower, upper, func(k, v []byte) error {
		if rng != nil && rng.LowerOpen && bytes.Equal(k, lower) {
			return nil
		}

		if rng != nil && rng.UpperOpen && bytes.Equal(k, upper) {
			return nil
		}

		return fn(k, v)
	})
	if err == errStop {
		return nil
	}

	return err
}

// resolveKey determines the primary key of the record: the explicit key
// first, then the table's key path, then its auto-increment sequence. A
// generated key is written back into the record when the table has a key
// path.
func resolveKey(bucket kv.Bucket, ts tableSchema, raw []byte, key Key) (Key, []byte, error) {
	if !key.IsZero() {
		return key, raw, nil
	}

	if ts.KeyPath != "" {
		extracted, found, err := valueAtPath(raw, ts.KeyPath)
		if err != nil {
			return Key{}, nil, err
		}

		if found {
			return extracted, raw, nil
		}
	}

	if ts.AutoIncrement {
		seq, err := bucket.NextSequence()
		if err != nil {
			return Key{}, nil, err
		}

		if ts.KeyPath != "" {
			raw, err = setValueAtPath(raw, ts.KeyPath, float64(seq))
			if err != nil {
				return Key{}, nil, err
			}
		}

		return Number(float64(seq)), raw, nil
	}

	if ts.KeyPath != "" {
		return Key{}, nil, xerrors.Errorf("record has no value at key path '%s'", ts.KeyPath)
	}

	return Key{}, nil, xerrors.New("missing key for table without key path")
}

// addIndexEntries writes one entry per index whose field is present in the
// record, enforcing unique constraints.
func addIndexEntries(tx kv.WritableTx, table string, ts tableSchema, raw, encPK []byte) error {
	for name, index := range ts.Indexes {
		key, found, err := valueAtPath(raw, index.FieldPath)
		if err != nil {
			return xerrors.Errorf("index '%s': %v", name, err)
		}

		if !found {
			continue
		}

		encKey, err := encodeKey(key)
		if err != nil {
			return xerrors.Errorf("index '%s': invalid key: %v", name, err)
		}

		bucket := tx.GetBucket(idxBucket(table, name))
		if bucket == nil {
			return xerrors.Errorf("index '%s' not found on table '%s'", name, table)
		}

		if index.Unique {
			err = bucket.Scan(indexPrefix(encKey), func(k, v []byte) error {
				return xerrors.Errorf("duplicate value %v for unique index '%s'", key, name)
			})
			if err != nil {
				return err
			}
		}

		err = bucket.Set(indexEntry(encKey, encPK), encPK)
		if err != nil {
			return err
		}
	}

	return nil
}

// removeIndexEntries drops the entries contributed by the stored record,
// recomputed from its value.
func removeIndexEntries(tx kv.WritableTx, table string, ts tableSchema, raw, encPK []byte) error {
	for name, index := range ts.Indexes {
		key, found, err := valueAtPath(raw, index.FieldPath)
		if err != nil {
			return xerrors.Errorf("index '%s': %v", name, err)
		}

		if !found {
			continue
		}

		encKey, err := encodeKey(key)
		if err != nil {
			return xerrors.Errorf("index '%s': invalid key: %v", name, err)
		}

		bucket := tx.GetBucket(idxBucket(table, name))
		if bucket == nil {
			return xerrors.Errorf("index '%s' not found on table '%s'", name, table)
		}

		err = bucket.Delete(indexEntry(encKey, encPK))
		if err != nil {
			return err
		}
	}

	return nil
}

// clearBucket deletes every key of the bucket. The keys are collected
// first as the engine forbids writes during an iteration.
func clearBucket(bucket kv.Bucket) error {
	keys := [][]byte{}

	err := bucket.ForEach(func(k, v []byte) error {
		keys = append(keys, append([]byte{}, k...))
		return nil
	})
	if err != nil {
		return err
	}

	for _, k := range keys {
		err := bucket.Delete(k)
		if err != nil {
			return err
		}
	}

	return nil
}
