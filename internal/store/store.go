package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danielpatrickdp/muse-gate/internal/logging"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS audit_log (
	id          TEXT PRIMARY KEY,
	learner_id  TEXT,
	stage       TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	input_json  TEXT NOT NULL,
	output_json TEXT NOT NULL,
	error       TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_learner ON audit_log (learner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_audit_stage ON audit_log (stage, created_at);
`
// #endregion schema

// ErrNotFound is returned when an audit record id does not exist.
var ErrNotFound = errors.New("audit record not found")

// #region store-struct
// Store keeps the append-only audit log in SQLite.
type Store struct {
	db *sql.DB
}
// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}
// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}
// #endregion db-accessor

// #region list
// Filter narrows ListAudit. Zero values match everything.
type Filter struct {
	LearnerID string
	Stage     string
	Outcome   string
	Since     time.Time
	Limit     int
}

// DefaultLimit caps ListAudit when Filter.Limit is unset.
const DefaultLimit = 50

// ListAudit returns matching records, newest first.
func (s *Store) ListAudit(ctx context.Context, f Filter) ([]logging.AuditRecord, error) {
	var where []string
	var args []interface{}
	if f.LearnerID != "" {
		where = append(where, "learner_id = ?")
		args = append(args, f.LearnerID)
	}
	if f.Stage != "" {
		where = append(where, "stage = ?")
		args = append(args, f.Stage)
	}
	if f.Outcome != "" {
		where = append(where, "outcome = ?")
		args = append(args, f.Outcome)
	}
	if !f.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(logging.TimeLayout))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	q := `SELECT id, learner_id, stage, outcome, input_json, output_json, created_at FROM audit_log`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var out []logging.AuditRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetAudit loads one record by id.
func (s *Store) GetAudit(ctx context.Context, id string) (logging.AuditRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, learner_id, stage, outcome, input_json, output_json, created_at
		 FROM audit_log WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return logging.AuditRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// OutcomeCounts tallies records per outcome, optionally for one stage.
func (s *Store) OutcomeCounts(ctx context.Context, stage string) (map[string]int, error) {
	q := `SELECT outcome, COUNT(*) FROM audit_log`
	var args []interface{}
	if stage != "" {
		q += ` WHERE stage = ?`
		args = append(args, stage)
	}
	q += ` GROUP BY outcome`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("count outcomes: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}
// #endregion list

// #region scan
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (logging.AuditRecord, error) {
	var rec logging.AuditRecord
	var learnerID sql.NullString
	var inputJSON, outputJSON, createdAt string
	if err := sc.Scan(&rec.ID, &learnerID, &rec.Stage, &rec.Outcome, &inputJSON, &outputJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan audit: %w", err)
	}
	rec.LearnerID = learnerID.String
	if err := json.Unmarshal([]byte(inputJSON), &rec.Input); err != nil {
		return rec, fmt.Errorf("unmarshal input %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(outputJSON), &rec.Output); err != nil {
		return rec, fmt.Errorf("unmarshal output %s: %w", rec.ID, err)
	}
	t, err := time.Parse(logging.TimeLayout, createdAt)
	if err != nil {
		return rec, fmt.Errorf("parse created_at %s: %w", rec.ID, err)
	}
	rec.CreatedAt = t
	return rec, nil
}
// #endregion scan
