// Package store implements the record store facade: named, versioned
// database files holding record collections ("tables") with optional
// secondary indexes. Every operation wraps exactly one engine transaction
// scoped to a single table and returns a single-resolution promise.
//
// A store is opened at a version. When the requested version is higher
// than the stored one, or the file is new, the upgrade callback runs
// inside the transaction that persists the new schema, so a callback error
// rolls the whole upgrade back. Tables and indexes can only be created or
// removed during that callback.
package store

import (
	"encoding/json"

	"github.com/keyrec/keyrec/promise"
)

// Record is the value of a table entry, a JSON document.
type Record = json.RawMessage

// TableOptions configures the primary key of a table. With a key path, the
// key is extracted from the record at the dot-separated field path. With
// auto increment, missing keys are generated from the table sequence.
// Without either, every write must provide an explicit key.
type TableOptions struct {
	KeyPath       string
	AutoIncrement bool
}

// IndexSpec describes one secondary index of a table.
type IndexSpec struct {
	Name      string
	FieldPath string
	Unique    bool
}

// Store is a facade over an open database. The set of operations is fixed:
// each one runs as its own transaction, independent from any other call,
// and settles its promise exactly once. The store must not be used after
// Close.
type Store interface {
	// Get returns the record stored under the key, or nil when there is
	// none.
	Get(table string, key Key) *promise.Promise[Record]

	// GetAll returns the records within the range in key order. A nil
	// range matches the whole table and a non-positive limit is unbounded.
	GetAll(table string, rng *Range, limit int) *promise.Promise[[]Record]

	// GetAllKeys returns the primary keys within the range in key order,
	// under the same rules as GetAll.
	GetAllKeys(table string, rng *Range, limit int) *promise.Promise[[]Key]

	// GetIndex returns the first record whose indexed field equals the
	// key, or nil when none matches.
	GetIndex(table, index string, key Key) *promise.Promise[Record]

	// Insert stores the record and returns its primary key. It fails when
	// a record with the same primary key, or the same value on a unique
	// index, already exists. A zero key falls back to the table's key path
	// and then to its auto-increment sequence.
	Insert(table string, value interface{}, key Key) *promise.Promise[Key]

	// Put stores the record, overwriting any record with the same primary
	// key, and returns that key. It fails only when another record holds
	// the same value on a unique index.
	Put(table string, value interface{}, key Key) *promise.Promise[Key]

	// Delete removes the record stored under the key. Deleting a missing
	// key succeeds.
	Delete(table string, key Key) *promise.Promise[promise.Void]

	// Clear removes all the records of the table.
	Clear(table string) *promise.Promise[promise.Void]

	// Count returns the number of records within the range, or in the
	// whole table for a nil range.
	Count(table string, rng *Range) *promise.Promise[int]

	// Tables returns the sorted names of the tables of the store.
	Tables() []string

	// Close closes the database. Pending operations may still settle, and
	// any later operation fails with the engine's closed-database error.
	Close() error
}

// Upgrade gives access to the schema of a store during a version upgrade.
// It is only valid for the duration of the upgrade callback.
type Upgrade interface {
	// OldVersion returns the version stored before the upgrade, or zero
	// for a new database.
	OldVersion() uint32

	// NewVersion returns the version being upgraded to.
	NewVersion() uint32

	// Tables returns the sorted names of the tables, including the ones
	// created earlier in the same upgrade.
	Tables() []string

	// CreateTable creates a table and its indexes. It fails when the table
	// already exists.
	CreateTable(name string, opts TableOptions, indexes ...IndexSpec) error

	// DeleteTable removes the table and all its indexes. It fails when the
	// table does not exist.
	DeleteTable(name string) error
}

// UpgradeFunc is called during an open when the requested version is
// higher than the stored one. An error aborts the open and rolls back any
// schema change already made.
type UpgradeFunc func(up Upgrade) error
