package timing

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const schema = `CREATE TABLE IF NOT EXISTS phase_timings (
	run_id      TEXT    NOT NULL,
	seq         INTEGER NOT NULL,
	kind        TEXT    NOT NULL,
	table_name  TEXT    NOT NULL,
	duration_ms INTEGER NOT NULL,
	recorded_at TEXT    NOT NULL,
	PRIMARY KEY (run_id, seq)
)`

// Store persists observations into a SQLite database, one row per closed
// phase, tagged with the run id so several runs can share a file.
type Store struct {
	db     *sql.DB
	insert *sql.Stmt
	runID  string
	seq    int
	now    func() time.Time
}

// OpenStore opens (creating if needed) the SQLite file at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open timings db %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create phase_timings table: %w", err)
	}
	stmt, err := db.PrepareContext(ctx,
		`INSERT INTO phase_timings (run_id, seq, kind, table_name, duration_ms, recorded_at) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("prepare timing insert: %w", err)
	}

	s := &Store{db: db, insert: stmt, runID: uuid.NewString(), now: time.Now}
	slog.Debug("Timings store opened", "path", path, "run_id", s.runID)
	return s, nil
}

// RunID identifies the rows written by this store.
func (s *Store) RunID() string { return s.runID }

func (s *Store) Record(o Observation) error {
	s.seq++
	_, err := s.insert.Exec(s.runID, s.seq, o.Kind.Short(), o.Table, o.Millis(),
		s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("persist timing for %s: %w", o.Table, err)
	}
	return nil
}

// Rows returns the observations recorded for runID in order.
func (s *Store) Rows(ctx context.Context, runID string) ([]Observation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, table_name, duration_ms FROM phase_timings WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query timings for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var kind, table string
		var ms int64
		if err := rows.Scan(&kind, &table, &ms); err != nil {
			return nil, fmt.Errorf("scan timing row for run %s: %w", runID, err)
		}
		o := Observation{Kind: KindInsert, Table: table, Duration: time.Duration(ms) * time.Millisecond}
		if kind == KindCreate.Short() {
			o.Kind = KindCreate
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read timings for run %s: %w", runID, err)
	}
	return out, nil
}

func (s *Store) Close() error {
	_ = s.insert.Close()
	return s.db.Close()
}
