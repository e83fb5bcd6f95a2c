package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

func ExampleOpen() {
	dir, err := os.MkdirTemp(os.TempDir(), "example")
	if err != nil {
		panic("failed to create folder: " + err.Error())
	}

	defer os.RemoveAll(dir)

	ctx := context.Background()

	s, err := Open(filepath.Join(dir, "example.db"), 1, func(up Upgrade) error {
		return up.CreateTable("items", TableOptions{KeyPath: "id"},
			IndexSpec{Name: "byName", FieldPath: "name"})
	}).Await(ctx)
	if err != nil {
		panic("failed to open store: " + err.Error())
	}

	defer s.Close()

	key, err := s.Insert("items", map[string]interface{}{"id": 1, "name": "alice"}, Key{}).Await(ctx)
	if err != nil {
		panic("insert failed: " + err.Error())
	}

	fmt.Println("inserted", key)

	record, err := s.GetIndex("items", "byName", String("alice")).Await(ctx)
	if err != nil {
		panic("index lookup failed: " + err.Error())
	}

	fmt.Println(string(record))

	// Output: inserted 1
	// {"id":1,"name":"alice"}
}
