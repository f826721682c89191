package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"d20rules.io/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	session := fs.String("session", "", "session filter (events)")
	limit := fs.Int("limit", 20, "result limit")
	_ = fs.Parse(args)

	q := "sessions"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "events.sqlite")
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}

	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	ctx := context.Background()
	enc := json.NewEncoder(os.Stdout)

	switch q {
	case "sessions":
		sums, err := idx.Sessions(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, s := range sums {
			_ = enc.Encode(s)
		}
	case "events":
		if *limit <= 0 {
			*limit = 20
		}
		recs, err := idx.Events(ctx, *session, *limit)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		for _, r := range recs {
			_ = enc.Encode(r)
		}
	case "catalog":
		if fs.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "usage: admin db catalog <name>")
			os.Exit(2)
		}
		digest, raw, err := idx.Catalog(ctx, fs.Arg(1))
		if errors.Is(err, sql.ErrNoRows) {
			fmt.Fprintln(os.Stderr, "no such catalog:", fs.Arg(1))
			os.Exit(2)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, "digest:", digest)
		fmt.Println(string(raw))
	case "version":
		v, err := idx.SchemaVersion(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "query:", err)
			os.Exit(1)
		}
		fmt.Println(v)
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		os.Exit(2)
	}
}
