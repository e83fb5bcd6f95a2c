package store

import (
	"github.com/keyrec/keyrec/kv"
	"golang.org/x/xerrors"
)

// upgradeTx is the schema access handed to the upgrade callback. It writes
// through the transaction of the open, so the callback's changes and the
// new version number commit or roll back together.
//
// - implements store.Upgrade
type upgradeTx struct {
	tx     kv.WritableTx
	schema *schema
	old    uint32
	new    uint32
	done   bool
}

// OldVersion implements store.Upgrade. It returns the version stored
// before the upgrade.
func (up *upgradeTx) OldVersion() uint32 {
	return up.old
}

// NewVersion implements store.Upgrade. It returns the version being
// upgraded to.
func (up *upgradeTx) NewVersion() uint32 {
	return up.new
}

// Tables implements store.Upgrade. It returns the sorted table names.
func (up *upgradeTx) Tables() []string {
	return up.schema.tableNames()
}

// CreateTable implements store.Upgrade. It creates the table bucket, one
// bucket per index, and records them in the schema.
func (up *upgradeTx) CreateTable(name string, opts TableOptions, indexes ...IndexSpec) error {
	if up.done {
		return xerrors.New("upgrade is already finished")
	}

	err := checkName("table", name)
	if err != nil {
		return err
	}

	if _, found := up.schema.Tables[name]; found {
		return xerrors.Errorf("table '%s' already exists", name)
	}

	ts := tableSchema{
		KeyPath:       opts.KeyPath,
		AutoIncrement: opts.AutoIncrement,
		Indexes:       map[string]indexSchema{},
	}

	for _, index := range indexes {
		err := checkName("index", index.Name)
		if err != nil {
			return err
		}

		if index.FieldPath == "" {
			return xerrors.Errorf("index '%s' has an empty field path", index.Name)
		}

		if _, found := ts.Indexes[index.Name]; found {
			return xerrors.Errorf("index '%s' is declared twice", index.Name)
		}

		ts.Indexes[index.Name] = indexSchema{
			FieldPath: index.FieldPath,
			Unique:    index.Unique,
		}
	}

	_, err = up.tx.GetBucketOrCreate(recBucket(name))
	if err != nil {
		return xerrors.Errorf("failed to create table '%s': %v", name, err)
	}

	for indexName := range ts.Indexes {
		_, err = up.tx.GetBucketOrCreate(idxBucket(name, indexName))
		if err != nil {
			return xerrors.Errorf("failed to create index '%s': %v", indexName, err)
		}
	}

	up.schema.Tables[name] = ts

	return nil
}

// DeleteTable implements store.Upgrade. It removes the table bucket, its
// index buckets and the schema entry.
func (up *upgradeTx) DeleteTable(name string) error {
	if up.done {
		return xerrors.New("upgrade is already finished")
	}

	err := checkName("table", name)
	if err != nil {
		return err
	}

	ts, found := up.schema.Tables[name]
	if !found {
		return xerrors.Errorf("table '%s' not found", name)
	}

	err = up.tx.DeleteBucket(recBucket(name))
	if err != nil {
		return xerrors.Errorf("failed to delete table '%s': %v", name, err)
	}

	for indexName := range ts.Indexes {
		err = up.tx.DeleteBucket(idxBucket(name, indexName))
		if err != nil {
			return xerrors.Errorf("failed to delete index '%s': %v", indexName, err)
		}
	}

	delete(up.schema.Tables, name)

	return nil
}
