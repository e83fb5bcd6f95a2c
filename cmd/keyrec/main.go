// Package main provides a utility CLI to manage record store files: apply
// a declarative schema as a version upgrade, then read and write records.
//
// The schema file is a yaml document:
//
//	tables:
//	  items:
//	    keyPath: id
//	    indexes:
//	      byName:
//	        fieldPath: name
//	        unique: true
//	drop:
//	  - legacy
//
// Tables already present are left untouched, tables listed under drop are
// removed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/keyrec/keyrec"
	"github.com/keyrec/keyrec/store"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

type schemaConfig struct {
	Tables map[string]tableConfig `yaml:"tables"`
	Drop   []string               `yaml:"drop"`
}

type tableConfig struct {
	KeyPath       string                 `yaml:"keyPath"`
	AutoIncrement bool                   `yaml:"autoIncrement"`
	Indexes       map[string]indexConfig `yaml:"indexes"`
}

type indexConfig struct {
	FieldPath string `yaml:"fieldPath"`
	Unique    bool   `yaml:"unique"`
}

func main() {
	app := makeApp()

	err := app.Run(os.Args)
	if err != nil {
		keyrec.Logger.Fatal().Err(err).Send()
	}
}

func makeApp() *cli.App {
	return &cli.App{
		Name:  "keyrec",
		Usage: "manage record store files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "db",
				Usage:    "path of the store file",
				Required: true,
			},
			&cli.UintFlag{
				Name:  "version",
				Usage: "version to open the store at",
				Value: 1,
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "upgrade",
				Usage: "apply a yaml schema file as a version upgrade",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "schema",
						Usage:    "path of the yaml schema file",
						Required: true,
					},
				},
				Action: upgradeAction,
			},
			{
				Name:   "tables",
				Usage:  "list the tables of the store",
				Action: tablesAction,
			},
			{
				Name:  "get",
				Usage: "print the record stored under the key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Required: true},
					&cli.StringFlag{Name: "key", Required: true},
				},
				Action: getAction,
			},
			{
				Name:  "index",
				Usage: "print the record matching the index key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Required: true},
					&cli.StringFlag{Name: "index", Required: true},
					&cli.StringFlag{Name: "key", Required: true},
				},
				Action: indexAction,
			},
			{
				Name:  "put",
				Usage: "store a record, overwriting any previous one",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Required: true},
					&cli.StringFlag{Name: "record", Usage: "json record", Required: true},
					&cli.StringFlag{Name: "key", Usage: "explicit key"},
				},
				Action: putAction,
			},
			{
				Name:  "del",
				Usage: "delete the record stored under the key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Required: true},
					&cli.StringFlag{Name: "key", Required: true},
				},
				Action: delAction,
			},
			{
				Name:  "count",
				Usage: "count the records of the table",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "table", Required: true},
				},
				Action: countAction,
			},
			{
				Name:   "drop",
				Usage:  "delete the store file",
				Action: dropAction,
			},
		},
	}
}

func upgradeAction(c *cli.Context) error {
	data, err := os.ReadFile(c.String("schema"))
	if err != nil {
		return xerrors.Errorf("failed to read schema file: %v", err)
	}

	config := schemaConfig{}

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return xerrors.Errorf("failed to decode schema file: %v", err)
	}

	s, err := openStore(c, func(up store.Upgrade) error {
		return applySchema(up, config)
	})
	if err != nil {
		return err
	}

	defer s.Close()

	fmt.Fprintln(c.App.Writer, "tables:", s.Tables())

	return nil
}

// applySchema creates the tables of the configuration that do not exist
// yet and removes the dropped ones, so the same file can be applied to
// stores at different versions.
func applySchema(up store.Upgrade, config schemaConfig) error {
	existing := map[string]bool{}
	for _, name := range up.Tables() {
		existing[name] = true
	}

	for _, name := range config.Drop {
		if !existing[name] {
			continue
		}

		err := up.DeleteTable(name)
		if err != nil {
			return err
		}

		delete(existing, name)
	}

	names := make([]string, 0, len(config.Tables))
	for name := range config.Tables {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if existing[name] {
			continue
		}

		table := config.Tables[name]

		indexes := make([]store.IndexSpec, 0, len(table.Indexes))
		for indexName, index := range table.Indexes {
			indexes = append(indexes, store.IndexSpec{
				Name:      indexName,
				FieldPath: index.FieldPath,
				Unique:    index.Unique,
			})
		}

		opts := store.TableOptions{
			KeyPath:       table.KeyPath,
			AutoIncrement: table.AutoIncrement,
		}

		err := up.CreateTable(name, opts, indexes...)
		if err != nil {
			return err
		}
	}

	return nil
}

func tablesAction(c *cli.Context) error {
	s, err := openStore(c, nil)
	if err != nil {
		return err
	}

	defer s.Close()

	for _, name := range s.Tables() {
		fmt.Fprintln(c.App.Writer, name)
	}

	return nil
}

func getAction(c *cli.Context) error {
	s, err := openStore(c, nil)
	if err != nil {
		return err
	}

	defer s.Close()

	record, err := s.Get(c.String("table"), parseKey(c.String("key"))).Await(context.Background())
	if err != nil {
		return err
	}

	if record == nil {
		return xerrors.New("no record found")
	}

	fmt.Fprintln(c.App.Writer, string(record))

	return nil
}

func indexAction(c *cli.Context) error {
	s, err := openStore(c, nil)
	if err != nil {
		return err
	}

	defer s.Close()

	record, err := s.GetIndex(c.String("table"), c.String("index"),
		parseKey(c.String("key"))).Await(context.Background())
	if err != nil {
		return err
	}

	if record == nil {
		return xerrors.New("no record found")
	}

	fmt.Fprintln(c.App.Writer, string(record))

	return nil
}

func putAction(c *cli.Context) error {
	record := json.RawMessage(c.String("record"))
	if !json.Valid(record) {
		return xerrors.New("record is not valid json")
	}

	s, err := openStore(c, nil)
	if err != nil {
		return err
	}

	defer s.Close()

	key, err := s.Put(c.String("table"), record, parseKey(c.String("key"))).Await(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "stored", key)

	return nil
}

func delAction(c *cli.Context) error {
	s, err := openStore(c, nil)
	if err != nil {
		return err
	}

	defer s.Close()

	_, err = s.Delete(c.String("table"), parseKey(c.String("key"))).Await(context.Background())

	return err
}

func countAction(c *cli.Context) error {
	s, err := openStore(c, nil)
	if err != nil {
		return err
	}

	defer s.Close()

	count, err := s.Count(c.String("table"), nil).Await(context.Background())
	if err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, count)

	return nil
}

func dropAction(c *cli.Context) error {
	_, err := store.Delete(c.String("db")).Await(context.Background())

	return err
}

func openStore(c *cli.Context, fn store.UpgradeFunc) (store.Store, error) {
	return store.Open(c.String("db"), uint32(c.Uint("version")), fn).
		Await(context.Background())
}

// parseKey reads a key from the command line: a number when the value
// parses as one, a string otherwise.
func parseKey(value string) store.Key {
	if value == "" {
		return store.Key{}
	}

	num, err := strconv.ParseFloat(value, 64)
	if err == nil {
		return store.Number(num)
	}

	return store.String(value)
}
