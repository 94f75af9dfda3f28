package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DocumentName is the authoritative document inside each session directory.
const DocumentName = "session.json"

var (
	// ErrNotFound is returned for a missing session, slide or take.
	ErrNotFound = errors.New("not found")
	// ErrCorruptData is returned when a persisted document cannot be parsed.
	ErrCorruptData = errors.New("corrupt session data")
)

// Store is a file-backed repository of sessions rooted at one directory.
type Store struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// DefaultRoot returns the default sessions directory.
func DefaultRoot() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".rehearse", "sessions")
}

// NewStore creates the root directory if needed.
func NewStore(fsys afero.Fs, root string) (*Store, error) {
	if err := fsys.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions root: %w", err)
	}
	return &Store{fs: fsys, root: root, now: time.Now}, nil
}

// Fs exposes the filesystem the store writes through.
func (s *Store) Fs() afero.Fs { return s.fs }

// Root returns the sessions root directory.
func (s *Store) Root() string { return s.root }

// Dir returns the directory of a session.
func (s *Store) Dir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

// ListSessionIDs returns session directory names in lexical order.
func (s *Store) ListSessionIDs() ([]string, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("read sessions root: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// ListSessions returns a summary per readable session, in id order.
// Unreadable sessions are reported with their id as title.
func (s *Store) ListSessions() ([]Summary, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("read sessions root: %w", err)
	}
	var out []Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sum := Summary{ID: e.Name(), Title: e.Name(), ModTime: e.ModTime()}
		if sess, err := s.LoadSession(e.Name()); err == nil {
			sum.Title = sess.Title
			sum.Slides = len(sess.Slides)
			sum.Takes = sess.TakeCount()
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateSession allocates an id, builds the slides and persists immediately.
func (s *Store) CreateSession(title string, slideTitles []string) (*Session, error) {
	id, err := s.allocateID(title)
	if err != nil {
		return nil, err
	}
	if len(slideTitles) == 0 {
		slideTitles = DefaultSlideTitles
	}
	sess := &Session{ID: id, Title: title, TakesBySlide: make(map[int][]Take)}
	for i, t := range slideTitles {
		sess.Slides = append(sess.Slides, Slide{ID: i + 1, Title: strings.TrimSpace(t)})
	}
	if err := s.SaveSession(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// LoadSession reads and parses a session document.
func (s *Store) LoadSession(id string) (*Session, error) {
	if !validID(id) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	data, err := afero.ReadFile(s.fs, filepath.Join(s.Dir(id), DocumentName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("read session %q: %w", id, err)
	}
	sess, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", id, err)
	}
	return sess, nil
}

// LoadMostRecentSession loads the session whose directory was modified last.
// It returns nil, nil when no sessions exist.
func (s *Store) LoadMostRecentSession() (*Session, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("read sessions root: %w", err)
	}
	var latest os.FileInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if latest == nil || e.ModTime().After(latest.ModTime()) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	return s.LoadSession(latest.Name())
}

// SaveSession replaces the session document atomically.
func (s *Store) SaveSession(sess *Session) error {
	if err := sess.Validate(); err != nil {
		return fmt.Errorf("save session %q: %w", sess.ID, err)
	}
	data, err := Encode(sess)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", sess.ID, err)
	}
	if err := s.writeAtomic(s.Dir(sess.ID), DocumentName, data); err != nil {
		return fmt.Errorf("save session %q: %w", sess.ID, err)
	}
	return nil
}

// BuildTakeAudioFilename returns the deterministic audio file name for a take.
func BuildTakeAudioFilename(slideID, takeID int) string {
	return fmt.Sprintf("slide_%02d_take_%02d.wav", slideID, takeID)
}

// TakeAudioPath returns where a take's audio lives inside its session.
func (s *Store) TakeAudioPath(sessionID string, slideID, takeID int) string {
	return filepath.Join(s.Dir(sessionID), BuildTakeAudioFilename(slideID, takeID))
}

// TakeMetadataPath returns the side-car path for a take, keyed by audio stem.
func (s *Store) TakeMetadataPath(sess *Session, t Take) string {
	base := filepath.Base(t.AudioPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(s.Dir(sess.ID), stem+".json")
}

// SaveTakeMetadata writes the per-take side-car document.
func (s *Store) SaveTakeMetadata(sess *Session, t Take) error {
	data, err := EncodeTake(t)
	if err != nil {
		return fmt.Errorf("encode take %d: %w", t.ID, err)
	}
	path := s.TakeMetadataPath(sess, t)
	if err := s.writeAtomic(filepath.Dir(path), filepath.Base(path), data); err != nil {
		return fmt.Errorf("save take metadata: %w", err)
	}
	return nil
}

// RemoveSlideArtifacts deletes audio and side-car files for every take of
// the slide, then drops its take bucket. The caller removes the slide and saves.
func (s *Store) RemoveSlideArtifacts(sess *Session, slideID int) error {
	for _, t := range sess.TakesBySlide[slideID] {
		for _, path := range []string{t.AudioPath, s.TakeMetadataPath(sess, t)} {
			if path == "" {
				continue
			}
			if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove %s: %w", path, err)
			}
		}
	}
	delete(sess.TakesBySlide, slideID)
	return nil
}

func (s *Store) writeAtomic(dir, name string, data []byte) error {
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := afero.TempFile(s.fs, dir, "."+name+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// validID reports whether id names a single directory directly under the root.
func validID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && filepath.Base(id) == id
}

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases text and collapses non-alphanumeric runs to underscores.
func Slugify(text string) string {
	slug := nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(text)), "_")
	slug = strings.Trim(slug, "_")
	if slug == "" {
		return "session"
	}
	return slug
}

func (s *Store) allocateID(title string) (string, error) {
	base := s.now().Format("20060102_150405") + "_" + Slugify(title)
	id := base
	for n := 2; ; n++ {
		_, err := s.fs.Stat(s.Dir(id))
		if errors.Is(err, fs.ErrNotExist) {
			return id, nil
		}
		if err != nil {
			return "", fmt.Errorf("stat session dir: %w", err)
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}
