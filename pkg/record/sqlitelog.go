package record

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

// sqliteLog stores ticks in a dataset database shared across episodes.
type sqliteLog struct {
	db      *sql.DB
	insert  *sql.Stmt
	episode string
}

func newSQLiteLog(path string, meta Metadata) (*sqliteLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// The consumer is the only writer.
	db.SetMaxOpenConns(1)

	for _, stmt := range append([]string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
	}, schema()...) {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("init %s: %w", path, err)
		}
	}

	_, err = db.Exec(
		`INSERT OR REPLACE INTO episodes (id, run_id, task, fps, started_at) VALUES (?, ?, ?, ?, ?)`,
		meta.Episode, meta.RunID, meta.Task, meta.FPS, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("register episode: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM ticks WHERE episode = ?`, meta.Episode); err != nil {
		db.Close()
		return nil, fmt.Errorf("clear episode: %w", err)
	}

	cols := columns()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)+2), ", ")
	insert, err := db.Prepare(fmt.Sprintf(
		"INSERT INTO ticks (episode, seq, %s) VALUES (%s)",
		strings.Join(cols, ", "), placeholders))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	return &sqliteLog{db: db, insert: insert, episode: meta.Episode}, nil
}

func schema() []string {
	defs := []string{"episode TEXT NOT NULL", "seq INTEGER NOT NULL"}
	for _, c := range columns() {
		typ := "REAL"
		if strings.HasSuffix(c, "gripper") || strings.HasSuffix(c, "_frame") {
			typ = "INTEGER"
		}
		defs = append(defs, c+" "+typ)
	}
	defs = append(defs, "PRIMARY KEY (episode, seq)")
	return []string{
		`CREATE TABLE IF NOT EXISTS episodes (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			task TEXT,
			fps REAL,
			started_at TEXT
		)`,
		"CREATE TABLE IF NOT EXISTS ticks (\n\t" + strings.Join(defs, ",\n\t") + "\n)",
	}
}

func (l *sqliteLog) Write(s Snapshot) error {
	args := append([]any{l.episode, s.Seq}, s.values()...)
	if _, err := l.insert.Exec(args...); err != nil {
		return fmt.Errorf("insert tick %d: %w", s.Seq, err)
	}
	return nil
}

func (l *sqliteLog) Close() error {
	return multierr.Combine(l.insert.Close(), l.db.Close())
}
