package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/keyrec/keyrec/store"
	"github.com/stretchr/testify/require"
)

const testSchema = `
tables:
  items:
    keyPath: id
    indexes:
      byName:
        fieldPath: name
`

func TestApp_Scenario(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), "keyrec-cli")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	db := filepath.Join(dir, "test.db")
	schemaPath := filepath.Join(dir, "schema.yaml")

	err = os.WriteFile(schemaPath, []byte(testSchema), 0644)
	require.NoError(t, err)

	out := run(t, "--db", db, "upgrade", "--schema", schemaPath)
	require.Equal(t, "tables: [items]\n", out)

	out = run(t, "--db", db, "put", "--table", "items",
		"--record", `{"id":1,"name":"a"}`)
	require.Equal(t, "stored 1\n", out)

	out = run(t, "--db", db, "get", "--table", "items", "--key", "1")
	require.Equal(t, "{\"id\":1,\"name\":\"a\"}\n", out)

	out = run(t, "--db", db, "index", "--table", "items",
		"--index", "byName", "--key", "a")
	require.Equal(t, "{\"id\":1,\"name\":\"a\"}\n", out)

	out = run(t, "--db", db, "count", "--table", "items")
	require.Equal(t, "1\n", out)

	run(t, "--db", db, "del", "--table", "items", "--key", "1")

	out = run(t, "--db", db, "count", "--table", "items")
	require.Equal(t, "0\n", out)

	out = run(t, "--db", db, "tables")
	require.Equal(t, "items\n", out)

	run(t, "--db", db, "drop")

	_, err = os.Stat(db)
	require.True(t, os.IsNotExist(err))
}

func TestApp_UpgradeTwice(t *testing.T) {
	dir, err := os.MkdirTemp(os.TempDir(), "keyrec-cli")
	require.NoError(t, err)

	defer os.RemoveAll(dir)

	db := filepath.Join(dir, "test.db")
	schemaPath := filepath.Join(dir, "schema.yaml")

	err = os.WriteFile(schemaPath, []byte(testSchema), 0644)
	require.NoError(t, err)

	run(t, "--db", db, "upgrade", "--schema", schemaPath)

	// Applying the same schema at a higher version leaves it untouched.
	out := run(t, "--db", db, "--version", "2", "upgrade", "--schema", schemaPath)
	require.Equal(t, "tables: [items]\n", out)
}

func TestApp_ParseKey(t *testing.T) {
	require.Equal(t, store.Key{}, parseKey(""))
	require.Equal(t, store.Number(1.5), parseKey("1.5"))
	require.Equal(t, store.String("a"), parseKey("a"))
}

// -----------------------------------------------------------------------------
// Utility functions

func run(t *testing.T, args ...string) string {
	t.Helper()

	app := makeApp()

	out := new(bytes.Buffer)
	app.Writer = out

	err := app.Run(append([]string{"keyrec"}, args...))
	require.NoError(t, err)

	return out.String()
}
