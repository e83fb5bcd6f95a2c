// Package kv defines the abstraction for the embedded key/value engine.
//
// The package also implements the default engine based on bbolt
// (https://github.com/etcd-io/bbolt), which owns durability, isolation and
// on-disk format. The store package only ever talks to the engine through
// these interfaces.
package kv

// Bucket is a general interface to operate on an engine bucket.
type Bucket interface {
	// Get reads the key from the bucket and returns the value, or nil if
	// the key does not exist. The value is only valid for the duration of
	// the transaction.
	Get(key []byte) []byte

	// Set assigns the value to the provided key.
	Set(key, value []byte) error

	// Delete deletes the key from the bucket. Deleting a missing key is
	// not an error.
	Delete(key []byte) error

	// NextSequence returns the next value of the bucket sequence. It
	// returns an error when called outside a writable transaction.
	NextSequence() (uint64, error)

	// ForEach iterates over all the items of the bucket in key order. The
	// iteration stops when the callback returns an error, and that error
	// is returned.
	ForEach(fn func(k, v []byte) error) error

	// Scan iterates in key order over every key that matches the prefix.
	// The iteration stops when the callback returns an error, and that
	// error is returned.
	Scan(prefix []byte, fn func(k, v []byte) error) error

	// Ascend iterates in key order over every key k such that
	// lower <= k <= upper. A nil bound means the iteration is unbounded on
	// that side. The iteration stops when the callback returns an error,
	// and that error is returned.
	Ascend(lower, upper []byte, fn func(k, v []byte) error) error
}

// ReadableTx allows one to perform read-only atomic operations on the
// engine.
type ReadableTx interface {
	// GetBucket returns the bucket of the given name if it exists,
	// otherwise it returns nil.
	GetBucket(name []byte) Bucket
}

// WritableTx allows one to perform atomic operations on the engine.
type WritableTx interface {
	ReadableTx

	// GetBucketOrCreate returns the bucket of the given name if it exists,
	// or it creates it.
	GetBucketOrCreate(name []byte) (Bucket, error)

	// DeleteBucket removes the bucket of the given name and all its keys.
	// It returns an error if the bucket does not exist.
	DeleteBucket(name []byte) error
}

// DB is a general interface to operate over the key/value engine.
type DB interface {
	// View executes the provided read-only transaction in the context of
	// the database.
	View(fn func(ReadableTx) error) error

	// Update executes the provided writable transaction in the context of
	// the database. The transaction is rolled back when fn returns an
	// error.
	Update(fn func(WritableTx) error) error

	// Close closes the database and frees the resources. Any view or
	// update call will result in an error after this function is called.
	Close() error
}
