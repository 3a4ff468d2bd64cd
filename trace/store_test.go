package trace

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) (*Store, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewStore(db)
	if err := store.Init(); err != nil {
		t.Fatal(err)
	}
	return store, db
}

func TestStore_PersistsEntries(t *testing.T) {
	store, db := newTestStore(t)

	for i := 0; i < 5; i++ {
		store.RecordAsync(&Entry{
			TraceID:    "trc_local",
			Op:         "Query",
			Query:      "SELECT 1",
			DurationUs: int64(i * 10),
			Timestamp:  time.Now().UnixMicro(),
		})
	}

	// Close drains the channel and flushes the final batch.
	store.Close()

	var count int
	db.QueryRow("SELECT COUNT(*) FROM sql_traces WHERE trace_id='trc_local'").Scan(&count)
	if count != 5 {
		t.Fatalf("stored %d entries, want 5", count)
	}
}

func TestStore_RecordsError(t *testing.T) {
	store, db := newTestStore(t)

	store.RecordAsync(&Entry{
		Op:         "Exec",
		Query:      "INSERT INTO missing VALUES(1)",
		DurationUs: 42,
		Error:      "no such table: missing",
		Timestamp:  time.Now().UnixMicro(),
	})
	store.Close()

	var errMsg string
	if err := db.QueryRow("SELECT error FROM sql_traces LIMIT 1").Scan(&errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg != "no such table: missing" {
		t.Fatalf("error column: got %q", errMsg)
	}
}

func TestStore_DropOnFull(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := &Store{
		db:   db,
		ch:   make(chan *Entry, 2), // tiny buffer
		done: make(chan struct{}),
	}
	if err := s.Init(); err != nil {
		t.Fatal(err)
	}
	go s.flushLoop()

	// Fill the buffer.
	s.ch <- &Entry{Op: "a", Query: "q1", Timestamp: 1}
	s.ch <- &Entry{Op: "b", Query: "q2", Timestamp: 2}

	// This should not block even when the channel is full.
	done := make(chan struct{})
	go func() {
		s.RecordAsync(&Entry{Op: "c", Query: "q3", Timestamp: 3})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordAsync blocked on full channel")
	}

	s.Close()
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	store.RecordAsync(&Entry{Op: "Exec", Query: "INSERT 1", Timestamp: 1})

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
}
