package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"d20rules.io/internal/logging"
	"d20rules.io/internal/sim/catalogs"
	"d20rules.io/internal/sim/rules"
	"d20rules.io/internal/sim/tuning"
)

const schemaVersion = "1"

// Fixed width so MIN/MAX over the text column order by time.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteIndex is a queryable copy of engine lifecycle events and of the
// catalogs a server ran with. Events are written by one background goroutine;
// the journal stays the source of truth when the queue overflows.
type SQLiteIndex struct {
	db  *sql.DB
	log logrus.FieldLogger

	ch   chan rules.EventRecord
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

type Option func(*SQLiteIndex)

func WithLogger(l logrus.FieldLogger) Option { return func(s *SQLiteIndex) { s.log = l } }

func WithQueueSize(n int) Option {
	return func(s *SQLiteIndex) {
		if n > 0 {
			s.ch = make(chan rules.EventRecord, n)
		}
	}
}

type Stats struct {
	Written       uint64 `json:"written"`
	Dropped       uint64 `json:"dropped"`
	Failed        uint64 `json:"failed"`
	QueueDepth    int    `json:"queue_depth"`
	QueueCapacity int    `json:"queue_capacity"`
}

func OpenSQLite(path string, opts ...Option) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db:  db,
		log: logging.Discard(),
		ch:  make(chan rules.EventRecord, 4096),
	}
	for _, o := range opts {
		o(s)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			at TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			entity_ref TEXT NOT NULL,
			item_id INTEGER,
			item_ref TEXT,
			slot TEXT,
			UNIQUE (session, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_entity ON events(session, entity_id);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','` + schemaVersion + `');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close stops accepting events, writes whatever is queued and closes the db.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// RecordEvent queues r without blocking. A full queue drops r.
func (s *SQLiteIndex) RecordEvent(r rules.EventRecord) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		s.dropped.Add(1)
	}
}

// OnEvent has the signature of an engine subscriber.
func (s *SQLiteIndex) OnEvent(ev rules.Event) { s.RecordEvent(ev.Record()) }

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		Written:       s.written.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
	}
}

// UpsertCatalogs stores each table in canonical JSON (rows sorted by id)
// next to its digest, plus the tuning the process runs with.
func (s *SQLiteIndex) UpsertCatalogs(ctx context.Context, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	add := func(name, digest string, v any) error {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		rows = append(rows, kv{name: name, digest: digest, json: b})
		return nil
	}
	if err := add("weapon_types", cats.Weapons.Digest, sortedByID(cats.Weapons.ByID)); err != nil {
		return err
	}
	if err := add("item_base_types", cats.BaseTypes.Digest, sortedByID(cats.BaseTypes.ByID)); err != nil {
		return err
	}
	if err := add("armor_types", cats.Armors.Digest, sortedByID(cats.Armors.ByID)); err != nil {
		return err
	}
	if err := add("abilities", cats.Abilities.Digest, sortedByID(cats.Abilities.ByID)); err != nil {
		return err
	}
	if err := add("skills", cats.Skills.Digest, sortedByID(cats.Skills.ByID)); err != nil {
		return err
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.digest == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// sortedByID returns the map values ordered by key.
func sortedByID[T any](m map[string]T) []T {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]T, len(keys))
	for i, k := range keys {
		out[i] = m[k]
	}
	return out
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insert, err := s.db.Prepare(`INSERT OR REPLACE INTO events(session,seq,type,at,entity_id,entity_ref,item_id,item_ref,slot) VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		s.log.Errorf("indexdb: prepare insert: %v", err)
		for range s.ch {
			s.failed.Add(1)
		}
		return
	}
	defer insert.Close()

	var (
		tx          *sql.Tx
		pending     uint64
		opCount     int
		commitEvery = 500
	)
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.log.Warnf("indexdb: commit: %v", err)
			s.failed.Add(pending)
		} else {
			s.written.Add(pending)
		}
		tx, pending, opCount = nil, 0, 0
	}

	for r := range s.ch {
		if tx == nil {
			txx, err := s.db.BeginTx(ctx, nil)
			if err != nil {
				s.log.Warnf("indexdb: begin: %v", err)
				s.failed.Add(1)
				time.Sleep(50 * time.Millisecond)
				continue
			}
			tx = txx
		}
		var itemID any
		if r.ItemID != 0 {
			itemID = int64(r.ItemID)
		}
		if _, err := tx.Stmt(insert).Exec(
			r.Session,
			int64(r.Seq),
			string(r.Type),
			r.At.UTC().Format(timeFormat),
			int64(r.EntityID),
			r.EntityRef,
			itemID,
			nullString(r.ItemRef),
			nullString(string(r.Slot)),
		); err != nil {
			s.log.WithField("seq", r.Seq).Warnf("indexdb: insert event: %v", err)
			s.failed.Add(1)
			continue
		}
		pending++
		opCount++
		// Commit whenever the queue runs dry so readers never wait long on
		// the single connection.
		if opCount >= commitEvery || len(s.ch) == 0 {
			commit()
		}
	}
	commit()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
