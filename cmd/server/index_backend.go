package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"d20rules.io/internal/persistence/indexdb"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/rules"
	"d20rules.io/internal/sim/tuning"
)

type runtimeIndex interface {
	OnEvent(ev rules.Event)
	Events(ctx context.Context, session string, limit int) ([]rules.EventRecord, error)
	UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning) error
	Stats() indexdb.Stats
	Close() error
}

func openRuntimeIndex(dataDir string, tune tuning.Tuning, logger logrus.FieldLogger) (runtimeIndex, error) {
	if tune.DisableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("ADV_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := filepath.Join(dataDir, "index", "events.sqlite")
		return indexdb.OpenSQLite(dbPath,
			indexdb.WithLogger(logger.WithField("component", "index")),
			indexdb.WithQueueSize(tune.EventBuffer))
	default:
		return nil, fmt.Errorf("unsupported ADV_INDEX_BACKEND: %s", backend)
	}
}
