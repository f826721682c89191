package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"d20rules.io/internal/logging"
	persistlog "d20rules.io/internal/persistence/log"
	"d20rules.io/internal/protocol"
	"d20rules.io/internal/sim/blueprints"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/rules"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "spawn":
			spawnCmd(os.Args[2:])
			return
		case "journal":
			journalCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "validate":
			validateCmd(os.Args[2:])
			return
		}
	}
	validateCmd(os.Args[1:])
}

func loadEngine(blueprintsDir, catalogsDir, level string) (*rules.Engine, int, error) {
	logger := logging.New(level, "text", os.Stderr)
	var (
		cats *catalogs.Catalogs
		err  error
	)
	if strings.TrimSpace(catalogsDir) == "" {
		cats, err = catalogs.Default()
	} else {
		cats, err = catalogs.Load(catalogsDir)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("catalogs: %w", err)
	}
	reg, err := blueprints.NewRegistry(blueprints.WithLogger(logger))
	if err != nil {
		return nil, 0, err
	}
	n, err := blueprints.LoadDir(reg, blueprintsDir)
	if err != nil {
		return nil, n, err
	}
	return rules.New(reg, cats, rules.WithLogger(logger), rules.WithSessionID("admin")), n, nil
}

// validateCmd loads every blueprint and instantiates each one once, so
// broken equipment references and slot conflicts show up before a server
// ever sees the pack.
func validateCmd(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	dir := fs.String("blueprints", "./configs/blueprints", "blueprint directory")
	cats := fs.String("catalogs", "", "catalog override directory")
	_ = fs.Parse(args)

	eng, n, err := loadEngine(*dir, *cats, "warn")
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	failed := 0
	for _, ref := range eng.Blueprints().Refs() {
		ent, err := eng.CreateEntity(ref)
		if err != nil {
			failed++
			fmt.Printf("FAIL %s: %s\n", ref, describe(err))
			continue
		}
		_ = eng.DestroyEntity(ent.ID())
	}
	fmt.Printf("%d blueprints, %d failed\n", n, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func describe(err error) string {
	b := protocol.ErrorBodyOf(err)
	s := b.Code + " " + b.Message
	if len(b.Suggestions) > 0 {
		s += " (did you mean " + strings.Join(b.Suggestions, ", ") + "?)"
	}
	return s
}

func spawnCmd(args []string) {
	fs := flag.NewFlagSet("spawn", flag.ExitOnError)
	dir := fs.String("blueprints", "./configs/blueprints", "blueprint directory")
	cats := fs.String("catalogs", "", "catalog override directory")
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: admin spawn [-blueprints dir] <ref>")
		os.Exit(2)
	}
	eng, _, err := loadEngine(*dir, *cats, "warn")
	if err != nil {
		fmt.Fprintln(os.Stderr, "load:", err)
		os.Exit(1)
	}
	if _, err := eng.CreateEntity(fs.Arg(0)); err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(eng.Entities())
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	session := fs.String("session", "", "session filter")
	_ = fs.Parse(args)

	files, err := persistlog.JournalFiles(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, f := range files {
		recs, err := persistlog.ReadEvents(f)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read:", err)
			os.Exit(1)
		}
		for _, r := range recs {
			if *session != "" && r.Session != *session {
				continue
			}
			_ = enc.Encode(r)
		}
	}
}
