package history

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// createTestStore opens an in-memory database with the history schema.
func createTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// a single connection keeps the in-memory database alive between queries
	db.SetMaxOpenConns(1)

	store, err := newStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRecordAndForTake(t *testing.T) {
	store := createTestStore(t)
	base := time.Unix(1710000000, 0)

	store.Record(Entry{SessionID: "s1", SlideID: 1, TakeID: 1, TimingLabel: "short",
		MissingKeywords: []string{"problem", "market size"}, Summary: "first", DurationSec: 12, CreatedAt: base})
	store.Record(Entry{SessionID: "s1", SlideID: 1, TakeID: 1, TimingLabel: "good",
		Summary: "second", DurationSec: 12, CreatedAt: base.Add(time.Minute)})
	store.Record(Entry{SessionID: "s1", SlideID: 1, TakeID: 2, TimingLabel: "good", Summary: "other take", CreatedAt: base})

	entries, err := store.ForTake("s1", 1, 1)
	if err != nil {
		t.Fatalf("ForTake: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Summary != "second" {
		t.Errorf("entries[0].Summary = %q, want newest first", entries[0].Summary)
	}
	if len(entries[0].MissingKeywords) != 0 {
		t.Errorf("entries[0].MissingKeywords = %v, want none", entries[0].MissingKeywords)
	}
	if len(entries[1].MissingKeywords) != 2 || entries[1].MissingKeywords[1] != "market size" {
		t.Errorf("entries[1].MissingKeywords = %v", entries[1].MissingKeywords)
	}
	if entries[1].ID == "" {
		t.Error("ID should be assigned")
	}
	if !entries[1].CreatedAt.Equal(base) {
		t.Errorf("CreatedAt = %v, want %v", entries[1].CreatedAt, base)
	}
}

func TestForSlideAndSession(t *testing.T) {
	store := createTestStore(t)
	store.Record(Entry{SessionID: "s1", SlideID: 1, TakeID: 1, TimingLabel: "good", Summary: "a"})
	store.Record(Entry{SessionID: "s1", SlideID: 2, TakeID: 1, TimingLabel: "long", Summary: "b"})
	store.Record(Entry{SessionID: "s2", SlideID: 1, TakeID: 1, TimingLabel: "good", Summary: "c"})

	slide, err := store.ForSlide("s1", 2)
	if err != nil {
		t.Fatalf("ForSlide: %v", err)
	}
	if len(slide) != 1 || slide[0].Summary != "b" {
		t.Errorf("ForSlide = %+v", slide)
	}

	sess, err := store.ForSession("s1")
	if err != nil {
		t.Fatalf("ForSession: %v", err)
	}
	if len(sess) != 2 {
		t.Errorf("ForSession = %d entries, want 2", len(sess))
	}

	none, err := store.ForSession("missing")
	if err != nil {
		t.Fatalf("ForSession missing: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("ForSession(missing) = %d entries", len(none))
	}
}

func TestDeleteSlide(t *testing.T) {
	store := createTestStore(t)
	store.Record(Entry{SessionID: "s1", SlideID: 1, TakeID: 1, TimingLabel: "good", Summary: "a"})
	store.Record(Entry{SessionID: "s1", SlideID: 2, TakeID: 1, TimingLabel: "good", Summary: "b"})

	if err := store.DeleteSlide("s1", 1); err != nil {
		t.Fatalf("DeleteSlide: %v", err)
	}
	left, _ := store.ForSession("s1")
	if len(left) != 1 || left[0].SlideID != 2 {
		t.Errorf("remaining = %+v", left)
	}
}

func TestOpenOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.sqlite")

	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := store.Record(Entry{SessionID: "s", SlideID: 1, TakeID: 1, TimingLabel: "good", Summary: "x"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	store.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.ForSession("s")
	if err != nil {
		t.Fatalf("ForSession: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("entries = %d, want 1", len(entries))
	}
}
