package indexdb

import (
	"context"
	"database/sql"
	"time"

	"d20rules.io/internal/sim/consts"
	"d20rules.io/internal/sim/rules"
)

// Events returns the newest limit events of session in seq order. An empty
// session matches every session.
func (s *SQLiteIndex) Events(ctx context.Context, session string, limit int) ([]rules.EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, seq, type, at, entity_id, entity_ref, item_id, item_ref, slot
		FROM events
		WHERE ? = '' OR session = ?
		ORDER BY id DESC
		LIMIT ?`, session, session, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.EventRecord
	for rows.Next() {
		var (
			r        rules.EventRecord
			seq      int64
			typ, at  string
			entityID int64
			itemID   sql.NullInt64
			itemRef  sql.NullString
			slot     sql.NullString
		)
		if err := rows.Scan(&r.Session, &seq, &typ, &at, &entityID, &r.EntityRef, &itemID, &itemRef, &slot); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.Type = rules.EventType(typ)
		r.At, _ = time.Parse(timeFormat, at)
		r.EntityID = rules.EntityID(entityID)
		r.ItemID = rules.EntityID(itemID.Int64)
		r.ItemRef = itemRef.String
		r.Slot = consts.Slot(slot.String)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

type SessionSummary struct {
	Session string    `json:"session"`
	Events  int       `json:"events"`
	First   time.Time `json:"first"`
	Last    time.Time `json:"last"`
}

// Sessions lists every session seen, most recent first.
func (s *SQLiteIndex) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT session, COUNT(*), MIN(at), MAX(at), MAX(id) AS last_id
		FROM events
		GROUP BY session
		ORDER BY last_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SessionSummary
	for rows.Next() {
		var (
			sum         SessionSummary
			first, last string
			lastID      int64
		)
		if err := rows.Scan(&sum.Session, &sum.Events, &first, &last, &lastID); err != nil {
			return nil, err
		}
		sum.First, _ = time.Parse(timeFormat, first)
		sum.Last, _ = time.Parse(timeFormat, last)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Catalog returns the stored digest and canonical JSON of one table, or
// sql.ErrNoRows.
func (s *SQLiteIndex) Catalog(ctx context.Context, name string) (digest string, raw []byte, err error) {
	var js string
	err = s.db.QueryRowContext(ctx, `SELECT digest, json FROM catalogs WHERE name = ?`, name).Scan(&digest, &js)
	if err != nil {
		return "", nil, err
	}
	return digest, []byte(js), nil
}

func (s *SQLiteIndex) SchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&v)
	return v, err
}
