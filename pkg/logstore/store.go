// Package logstore persists per-session log entries as newline-delimited
// JSON files with size-based rotation and age-based retention.
//
// Each session owns one primary file plus at most one rotation backup.
// The store assumes single-process ownership of its directory; within
// the process, file operations for a session are serialized by a
// per-session lock.
package logstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lodestar-sh/lodestar/pkg/core"
)

const (
	// DefaultMaxFileSize is the rotation threshold for a session's
	// primary file.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// DefaultMaxAge is how long a session's logs are retained before
	// the startup sweep deletes them.
	DefaultMaxAge = 7 * 24 * time.Hour

	// exportLimit caps how many entries an export renders.
	exportLimit = 10000

	backupSuffix = ".bak"
)

// Store is a rotating, age-bounded log store rooted at one directory.
type Store struct {
	dir     string
	maxSize int64
	maxAge  time.Duration
	logger  *slog.Logger
	now     func() time.Time

	locks *sessionLocks
}

// RetrieveOptions narrows a Retrieve call. Tail limits the result to
// the most recent n entries (0 means all); Filter is a case-insensitive
// regular expression matched against each entry's data.
type RetrieveOptions struct {
	Tail   int
	Filter string
}

// New creates a store rooted at dir. Zero values select the defaults.
func New(dir string, maxSize int64, maxAge time.Duration, logger *slog.Logger) *Store {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:     dir,
		maxSize: maxSize,
		maxAge:  maxAge,
		logger:  logger,
		now:     time.Now,
		locks:   newSessionLocks(),
	}
}

// Append serializes the entries and appends them to the session's
// primary file, creating the file and its parent directory on first
// use. If the append pushes the file past the size threshold, the file
// is rotated synchronously before Append returns. Empty input is a
// no-op.
func (s *Store) Append(sessionID string, entries []core.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	path := s.primaryPath(sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session log %s: %w", sessionID, err)
	}

	var buf strings.Builder
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return fmt.Errorf("encode log entry: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	if _, err := f.WriteString(buf.String()); err != nil {
		f.Close()
		return fmt.Errorf("append session log %s: %w", sessionID, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close session log %s: %w", sessionID, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat session log %s: %w", sessionID, err)
	}
	if info.Size() > s.maxSize {
		if err := s.rotate(sessionID, path); err != nil {
			return fmt.Errorf("rotate session log %s: %w", sessionID, err)
		}
	}
	return nil
}

// rotate renames the primary file to a timestamped backup and removes
// any older backups so at most one survives. Caller holds the session
// lock.
func (s *Store) rotate(sessionID, path string) error {
	backup := fmt.Sprintf("%s.%d%s", path, s.now().UnixMilli(), backupSuffix)
	if err := os.Rename(path, backup); err != nil {
		return err
	}
	for _, old := range s.backupPaths(sessionID) {
		if old == backup {
			continue
		}
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("remove old backup failed", "session", sessionID, "path", old, "err", err)
		}
	}
	s.logger.Info("rotated session log", "session", sessionID, "backup", filepath.Base(backup))
	return nil
}

// Retrieve reads the session's entries in append order. A missing file
// yields an empty result. Lines that fail to parse are kept as
// synthesized system entries rather than dropped. An invalid filter
// pattern is reported and ignored.
func (s *Store) Retrieve(sessionID string, opts RetrieveOptions) ([]core.LogEntry, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	data, err := os.ReadFile(s.primaryPath(sessionID))
	if errors.Is(err, os.ErrNotExist) {
		return []core.LogEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session log %s: %w", sessionID, err)
	}

	var filter *regexp.Regexp
	if opts.Filter != "" {
		filter, err = regexp.Compile("(?i)" + opts.Filter)
		if err != nil {
			s.logger.Warn("invalid log filter, ignoring", "session", sessionID, "filter", opts.Filter, "err", err)
			filter = nil
		}
	}

	entries := []core.LogEntry{}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var e core.LogEntry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			e = core.LogEntry{
				TsUnixMs: s.now().UnixMilli(),
				Type:     "system",
				Data:     line,
			}
		}
		if filter != nil && !filter.MatchString(e.Data) {
			continue
		}
		entries = append(entries, e)
	}

	if opts.Tail > 0 && len(entries) > opts.Tail {
		entries = entries[len(entries)-opts.Tail:]
	}
	return entries, nil
}

// Export formats for Export.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// exportDoc is the JSON export envelope.
type exportDoc struct {
	SessionID  string          `json:"session_id"`
	ExportedAt string          `json:"exported_at"`
	Count      int             `json:"count"`
	Entries    []core.LogEntry `json:"entries"`
}

// Export renders up to the 10,000 most recent entries either as
// human-readable text lines or as a single JSON document.
func (s *Store) Export(sessionID, format string) ([]byte, error) {
	entries, err := s.Retrieve(sessionID, RetrieveOptions{Tail: exportLimit})
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatText:
		var b strings.Builder
		for _, e := range entries {
			ts := time.UnixMilli(e.TsUnixMs).UTC().Format(time.RFC3339)
			fmt.Fprintf(&b, "[%s] %s: %s\n", ts, strings.ToUpper(e.Type), e.Data)
		}
		return []byte(b.String()), nil
	case FormatJSON:
		doc := exportDoc{
			SessionID:  sessionID,
			ExportedAt: s.now().UTC().Format(time.RFC3339),
			Count:      len(entries),
			Entries:    entries,
		}
		return json.MarshalIndent(doc, "", "  ")
	default:
		return nil, fmt.Errorf("unknown export format %q (want %s or %s)", format, FormatJSON, FormatText)
	}
}

// Delete removes the session's primary file and any backups. A missing
// file is not an error.
func (s *Store) Delete(sessionID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if err := os.Remove(s.primaryPath(sessionID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete session log %s: %w", sessionID, err)
	}
	for _, backup := range s.backupPaths(sessionID) {
		if err := os.Remove(backup); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete session backup %s: %w", sessionID, err)
		}
	}
	return nil
}

// Sweep deletes every session whose primary file has not been modified
// within the retention window, backups included. It returns the number
// of sessions removed. The daemon runs this once at startup.
func (s *Store) Sweep() (int, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read log directory: %w", err)
	}

	cutoff := s.now().Add(-s.maxAge)
	removed := 0
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		sessionID := strings.TrimSuffix(name, ".log")
		if err := s.Delete(sessionID); err != nil {
			s.logger.Warn("sweep failed for session", "session", sessionID, "err", err)
			continue
		}
		removed++
		s.logger.Info("swept expired session log", "session", sessionID, "age", s.now().Sub(info.ModTime()).Round(time.Hour))
	}
	return removed, nil
}

// Sessions lists the session ids with a primary file on disk.
func (s *Store) Sessions() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log directory: %w", err)
	}

	ids := []string{}
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".log") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".log"))
	}
	return ids, nil
}

func (s *Store) primaryPath(sessionID string) string {
	return filepath.Join(s.dir, sanitize(sessionID)+".log")
}

// backupPaths returns the session's backup files, if any.
func (s *Store) backupPaths(sessionID string) []string {
	matches, err := filepath.Glob(filepath.Join(s.dir, sanitize(sessionID)+".log.*"+backupSuffix))
	if err != nil {
		return nil
	}
	return matches
}

// sanitize maps a session id to a safe file name component.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, id)
}
