package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

// newTestStore creates a store over an in-memory filesystem with a fixed clock.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(afero.NewMemMapFs(), "/sessions")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	store.now = func() time.Time {
		return time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	}
	return store
}

func TestCreateSessionDefaults(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.CreateSession("Quarterly Review!", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if sess.ID != "20240309_140507_quarterly_review" {
		t.Errorf("ID = %q", sess.ID)
	}
	if len(sess.Slides) != 4 {
		t.Fatalf("slides = %d, want 4", len(sess.Slides))
	}
	for i, want := range DefaultSlideTitles {
		if sess.Slides[i].ID != i+1 {
			t.Errorf("slide[%d].ID = %d, want %d", i, sess.Slides[i].ID, i+1)
		}
		if sess.Slides[i].Title != want {
			t.Errorf("slide[%d].Title = %q, want %q", i, sess.Slides[i].Title, want)
		}
	}

	exists, err := afero.Exists(store.fs, "/sessions/20240309_140507_quarterly_review/session.json")
	if err != nil || !exists {
		t.Errorf("session document not written: exists=%v err=%v", exists, err)
	}
}

func TestCreateSessionTrimsTitles(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.CreateSession("Talk", []string{"  Opening ", "Demo"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(sess.Slides) != 2 {
		t.Fatalf("slides = %d, want 2", len(sess.Slides))
	}
	if sess.Slides[0].Title != "Opening" {
		t.Errorf("title = %q, want %q", sess.Slides[0].Title, "Opening")
	}
}

func TestCreateSessionSameSecondGetsSuffix(t *testing.T) {
	store := newTestStore(t)

	first, err := store.CreateSession("Talk", nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := store.CreateSession("Talk", nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("ids collide: %q", first.ID)
	}
	if second.ID != first.ID+"_2" {
		t.Errorf("second ID = %q, want %q", second.ID, first.ID+"_2")
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"My Presentation", "my_presentation"},
		{"  Hello,   World!! ", "hello_world"},
		{"__x__", "x"},
		{"발표 연습", "session"},
		{"", "session"},
		{"Q3 2024 -- Results", "q3_2024_results"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	sess, err := store.CreateSession("Round Trip", []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	sess.Slides[0].Notes = "intro\nproblem"
	created := time.Date(2024, 3, 9, 14, 6, 0, 0, time.Local)
	sess.AddTake(Take{ID: 1, SlideID: 1, AudioPath: "/sessions/x/slide_01_take_01.wav", DurationSec: 12.5, CreatedAt: created})
	sess.AddTake(Take{ID: 2, SlideID: 1, AudioPath: "/sessions/x/slide_01_take_02.wav", DurationSec: 30,
		TranscriptText: "hello", TranscriptMeta: map[string]any{"language_code": "eng"}, CreatedAt: created})
	sess.AddTake(Take{ID: 1, SlideID: 3, AudioPath: "/sessions/x/slide_03_take_01.wav", DurationSec: 91, CreatedAt: created})

	if err := store.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	loaded, err := store.LoadSession(sess.ID)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}

	if loaded.Title != "Round Trip" {
		t.Errorf("Title = %q", loaded.Title)
	}
	if loaded.Slides[0].Notes != "intro\nproblem" {
		t.Errorf("Notes = %q", loaded.Slides[0].Notes)
	}
	if len(loaded.TakesBySlide) != 2 {
		t.Fatalf("take buckets = %d, want 2", len(loaded.TakesBySlide))
	}
	if len(loaded.Takes(1)) != 2 || len(loaded.Takes(3)) != 1 {
		t.Fatalf("takes per slide = %d/%d, want 2/1", len(loaded.Takes(1)), len(loaded.Takes(3)))
	}
	got := loaded.Takes(1)[1]
	if got.TranscriptText != "hello" {
		t.Errorf("TranscriptText = %q", got.TranscriptText)
	}
	if got.TranscriptMeta["language_code"] != "eng" {
		t.Errorf("TranscriptMeta = %v", got.TranscriptMeta)
	}
	if got.DurationSec != 30 {
		t.Errorf("DurationSec = %v", got.DurationSec)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}
	if loaded.NextTakeID(1) != 3 || loaded.NextTakeID(3) != 2 || loaded.NextTakeID(2) != 1 {
		t.Errorf("NextTakeID = %d/%d/%d", loaded.NextTakeID(1), loaded.NextTakeID(3), loaded.NextTakeID(2))
	}
	if loaded.NextSlideID() != 4 {
		t.Errorf("NextSlideID = %d, want 4", loaded.NextSlideID())
	}
}

func TestLoadSessionNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.LoadSession("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestLoadSessionRejectsUnsafeIDs(t *testing.T) {
	store := newTestStore(t)
	if err := afero.WriteFile(store.fs, "/outside/session.json", []byte(`{"id":"outside","slides":[],"takes_by_slide":{}}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, id := range []string{"../outside", "a/b", "..", ".", ""} {
		if _, err := store.LoadSession(id); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadSession(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestLoadSessionCorrupt(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `{"id": `},
		{"non-integer key", `{"id":"s","title":"t","slides":[{"id":1,"title":"a","notes":""}],"takes_by_slide":{"one":[]}}`},
		{"padded key", `{"id":"s","title":"t","slides":[{"id":1,"title":"a","notes":""}],"takes_by_slide":{"01":[]}}`},
		{"signed key", `{"id":"s","title":"t","slides":[{"id":1,"title":"a","notes":""}],"takes_by_slide":{"+1":[]}}`},
		{"duplicate key spellings", `{"id":"s","title":"t","slides":[{"id":1,"title":"a","notes":""}],"takes_by_slide":{"1":[],"01":[]}}`},
		{"orphaned bucket", `{"id":"s","title":"t","slides":[{"id":1,"title":"a","notes":""}],"takes_by_slide":{"2":[]}}`},
		{"mismatched slide_id", `{"id":"s","title":"t","slides":[{"id":1,"title":"a","notes":""}],"takes_by_slide":{"1":[{"id":1,"slide_id":2,"audio_path":"a.wav","duration_sec":1,"transcript_text":"","transcript_meta":{},"created_at":"2024-03-09T14:05:07"}]}}`},
		{"bad timestamp", `{"id":"s","title":"t","slides":[{"id":1,"title":"a","notes":""}],"takes_by_slide":{"1":[{"id":1,"slide_id":1,"audio_path":"a.wav","duration_sec":1,"transcript_text":"","transcript_meta":{},"created_at":"yesterday"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t)
			if err := afero.WriteFile(store.fs, "/sessions/s/session.json", []byte(tt.doc), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := store.LoadSession("s")
			if !errors.Is(err, ErrCorruptData) {
				t.Fatalf("err = %v, want ErrCorruptData", err)
			}
		})
	}
}

func TestLoadSessionTitleFallsBackToID(t *testing.T) {
	store := newTestStore(t)
	doc := `{"id":"s","slides":[],"takes_by_slide":{}}`
	if err := afero.WriteFile(store.fs, "/sessions/s/session.json", []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	sess, err := store.LoadSession("s")
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if sess.Title != "s" {
		t.Errorf("Title = %q, want %q", sess.Title, "s")
	}
}

func TestListSessionIDsSorted(t *testing.T) {
	store := newTestStore(t)
	for _, id := range []string{"b", "a", "c"} {
		if err := store.fs.MkdirAll(filepath.Join("/sessions", id), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	afero.WriteFile(store.fs, "/sessions/stray.txt", []byte("x"), 0o644)

	ids, err := store.ListSessionIDs()
	if err != nil {
		t.Fatalf("ListSessionIDs: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}

func TestLoadMostRecentSession(t *testing.T) {
	store := newTestStore(t)

	got, err := store.LoadMostRecentSession()
	if err != nil {
		t.Fatalf("empty root: %v", err)
	}
	if got != nil {
		t.Fatalf("empty root returned %q, want nil", got.ID)
	}

	older, _ := store.CreateSession("Older", nil)
	store.now = func() time.Time { return time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local) }
	newer, _ := store.CreateSession("Newer", nil)

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	store.fs.Chtimes(store.Dir(newer.ID), base, base)
	store.fs.Chtimes(store.Dir(older.ID), base.Add(time.Hour), base.Add(time.Hour))

	got, err = store.LoadMostRecentSession()
	if err != nil {
		t.Fatalf("LoadMostRecentSession: %v", err)
	}
	if got == nil || got.ID != older.ID {
		t.Fatalf("most recent = %v, want %q", got, older.ID)
	}
}

func TestListSessions(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.CreateSession("Demo Day", []string{"One", "Two"})
	sess.AddTake(Take{ID: 1, SlideID: 2, AudioPath: "x.wav", DurationSec: 3})
	if err := store.SaveSession(sess); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	list, err := store.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("sessions = %d, want 1", len(list))
	}
	if list[0].Title != "Demo Day" || list[0].Slides != 2 || list[0].Takes != 1 {
		t.Errorf("summary = %+v", list[0])
	}
}

func TestSaveSessionRejectsOrphanedBucket(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.CreateSession("Talk", []string{"Only"})
	sess.TakesBySlide[9] = []Take{{ID: 1, SlideID: 9}}

	if err := store.SaveSession(sess); err == nil {
		t.Fatal("expected error saving orphaned take bucket")
	}
}

func TestSaveSessionLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.CreateSession("Talk", nil)
	for i := 0; i < 3; i++ {
		if err := store.SaveSession(sess); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	entries, err := afero.ReadDir(store.fs, store.Dir(sess.ID))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != DocumentName {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("session dir = %v, want only %s", names, DocumentName)
	}
}

func TestBuildTakeAudioFilename(t *testing.T) {
	if got := BuildTakeAudioFilename(3, 12); got != "slide_03_take_12.wav" {
		t.Errorf("got %q", got)
	}
	if got := BuildTakeAudioFilename(101, 1); got != "slide_101_take_01.wav" {
		t.Errorf("got %q", got)
	}
}

func TestSaveTakeMetadata(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.CreateSession("Talk", nil)
	take := Take{
		ID:          1,
		SlideID:     2,
		AudioPath:   store.TakeAudioPath(sess.ID, 2, 1),
		DurationSec: 4.5,
		CreatedAt:   time.Date(2024, 3, 9, 14, 6, 0, 0, time.Local),
	}

	if err := store.SaveTakeMetadata(sess, take); err != nil {
		t.Fatalf("SaveTakeMetadata: %v", err)
	}

	data, err := afero.ReadFile(store.fs, filepath.Join(store.Dir(sess.ID), "slide_02_take_01.json"))
	if err != nil {
		t.Fatalf("read side-car: %v", err)
	}
	got, err := DecodeTake(data)
	if err != nil {
		t.Fatalf("DecodeTake: %v", err)
	}
	if got.DurationSec != 4.5 || got.SlideID != 2 || got.AudioPath != take.AudioPath {
		t.Errorf("side-car = %+v", got)
	}
}

func TestRemoveSlideArtifacts(t *testing.T) {
	store := newTestStore(t)
	sess, _ := store.CreateSession("Talk", nil)

	var takes []Take
	for id := 1; id <= 2; id++ {
		tk := Take{ID: id, SlideID: 1, AudioPath: store.TakeAudioPath(sess.ID, 1, id), DurationSec: 1}
		takes = append(takes, tk)
		sess.AddTake(tk)
	}
	other := Take{ID: 1, SlideID: 2, AudioPath: store.TakeAudioPath(sess.ID, 2, 1), DurationSec: 1}
	sess.AddTake(other)

	// take 1 has audio and side-car, take 2 has neither
	afero.WriteFile(store.fs, takes[0].AudioPath, []byte("RIFF"), 0o644)
	store.SaveTakeMetadata(sess, takes[0])
	afero.WriteFile(store.fs, other.AudioPath, []byte("RIFF"), 0o644)
	store.SaveTakeMetadata(sess, other)

	if err := store.RemoveSlideArtifacts(sess, 1); err != nil {
		t.Fatalf("RemoveSlideArtifacts: %v", err)
	}

	if _, ok := sess.TakesBySlide[1]; ok {
		t.Error("take bucket for slide 1 should be removed")
	}
	if _, ok := sess.Slide(1); !ok {
		t.Error("slide itself should remain until the caller removes it")
	}
	for _, p := range []string{takes[0].AudioPath, store.TakeMetadataPath(sess, takes[0])} {
		if ok, _ := afero.Exists(store.fs, p); ok {
			t.Errorf("%s should be deleted", p)
		}
	}
	for _, p := range []string{other.AudioPath, store.TakeMetadataPath(sess, other)} {
		if ok, _ := afero.Exists(store.fs, p); !ok {
			t.Errorf("%s should be untouched", p)
		}
	}
	if len(sess.Takes(2)) != 1 {
		t.Errorf("slide 2 takes = %d, want 1", len(sess.Takes(2)))
	}
}
