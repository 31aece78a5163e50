// Package history persists command lines between sessions.
package history

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"

	"jcsh/internal/log"
)

// DefaultLimit is the number of lines kept on disk.
const DefaultLimit = 1000

const fileName = ".jcsh_history"

// DefaultPath returns ~/.jcsh_history, or a file in the working
// directory when the home directory is unknown.
func DefaultPath() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, fileName)
	}
	return fileName
}

// Store holds the lines loaded from disk plus those added this session.
// Several shells may share a file; Save merges instead of overwriting.
type Store struct {
	path  string
	limit int
	lines []string
	added []string
}

func New(path string, limit int) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Store{path: path, limit: limit}
}

// Load reads the history file, creating it when it does not exist.
func (s *Store) Load() error {
	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o600)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	s.lines = lines
	log.Debug(log.CatHistory, "loaded", "path", s.path, "lines", len(lines))
	return nil
}

// Add records a line. Blank lines are ignored.
func (s *Store) Add(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	s.lines = append(s.lines, line)
	s.added = append(s.added, line)
}

// Lines returns everything known to the store, oldest first.
func (s *Store) Lines() []string {
	return s.lines
}

// Save appends this session's lines to whatever is on disk now and trims
// the result to the limit. The merge runs under an exclusive lock.
func (s *Store) Save() error {
	lock := flock.New(s.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire history lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read history: %w", err)
	}
	disk, err := readLines(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}

	merged := append(disk, s.added...)
	if len(merged) > s.limit {
		merged = merged[len(merged)-s.limit:]
	}

	var buf bytes.Buffer
	for _, l := range merged {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	log.Debug(log.CatHistory, "saved", "path", s.path, "added", len(s.added), "lines", len(merged))
	s.lines = merged
	s.added = nil
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := sc.Text(); strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}
