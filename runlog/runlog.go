// Package runlog persists a history of twbmap tool invocations to SQLite.
//
// Every operation (validate, analyze, suggest, remap, extract) is recorded
// asynchronously: which tool ran, against which file, how long it took, and
// whether it failed. The log is queryable from the CLI (`twbmap runs`) and
// from the HTTP API.
//
//	db, _ := dbopen.Open("runs.db", dbopen.WithMkdirAll())
//	store := runlog.NewStore(db)
//	store.Init()
//	defer store.Close()
package runlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hazyhaar/twbmap/idgen"
)

// Schema for the tool_runs table. Call Store.Init() or apply manually.
const Schema = `
CREATE TABLE IF NOT EXISTS tool_runs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL DEFAULT '',
	tool TEXT NOT NULL,
	target TEXT NOT NULL,
	output TEXT NOT NULL DEFAULT '',
	duration_us INTEGER NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_runs_ts ON tool_runs(timestamp);
CREATE INDEX IF NOT EXISTS idx_tool_runs_tool ON tool_runs(tool);
`

// Entry is a single tool invocation record.
type Entry struct {
	ID         int64  `json:"id,omitempty"`
	RunID      string `json:"run_id,omitempty"` // assigned by the store's ID generator
	Tool       string `json:"tool"`             // "remap_dimensions", "analyze_workbook", ...
	Target     string `json:"target"`           // primary input file path
	Output     string `json:"output"`           // output file path, empty if none
	DurationUs int64  `json:"duration_us"`      // microseconds
	Error      string `json:"error"`            // empty if success
	Timestamp  int64  `json:"timestamp"`        // unix microseconds
}

// Recorder is the interface the dimap service records through.
type Recorder interface {
	RecordAsync(e *Entry)
}

// Store persists run entries to a SQLite table asynchronously, batching
// writes so recording never blocks a tool call.
type Store struct {
	db   *sql.DB
	ids  idgen.Generator
	ch   chan *Entry
	done chan struct{}
	once sync.Once
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIDGenerator tags every recorded entry with an ID from gen. UUIDv7 is a
// good fit: run IDs stay time-sortable across databases.
func WithIDGenerator(gen idgen.Generator) StoreOption {
	return func(s *Store) { s.ids = gen }
}

// NewStore creates a run-log store backed by the given database connection
// and starts the flush goroutine.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan *Entry, 256),
		done: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.flushLoop()
	return s
}

// Init creates the tool_runs table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// RecordAsync queues an entry for async persistence. Non-blocking; drops if
// the buffer is full.
func (s *Store) RecordAsync(e *Entry) {
	if s.ids != nil && e.RunID == "" {
		e.RunID = s.ids()
	}
	select {
	case s.ch <- e:
	default:
	}
}

// Recent returns the most recent entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, tool, target, output, duration_us, error, timestamp
		FROM tool_runs ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Tool, &e.Target, &e.Output, &e.DurationUs, &e.Error, &e.Timestamp); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, rows.Err()
}

// RecentHandler serves the most recent entries as JSON, honoring a ?limit=
// query parameter. The store is opened once at startup and reused across
// requests; a nil store answers 404, for deployments running without a run
// log.
func RecentHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "run log disabled", http.StatusNotFound)
			return
		}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		entries, err := store.Recent(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(entries)
	}
}

// Close drains the buffer and stops the flush goroutine.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]*Entry, 0, 32)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 32 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Entry) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("runlog: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO tool_runs (run_id, tool, target, output, duration_us, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("runlog: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.RunID, e.Tool, e.Target, e.Output, e.DurationUs, e.Error, e.Timestamp); err != nil {
			slog.Error("runlog: insert", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("runlog: commit", "error", err)
	}
}
