// ABOUTME: File-backed collection store writing one YAML document per collection
// ABOUTME: Saves are atomic (temp file then rename); ids are validated before any I/O

package collection

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	fileExt      = ".yaml"
	schemaHeader = "# yaml-language-server: $schema=" + SchemaURL + "\n"
)

// Store persists collections as <dir>/<id>.yaml.
type Store struct {
	dir    string
	mu     sync.Mutex // serializes writes, including Update's load-modify-save
	logger *slog.Logger
}

// NewStore creates a store rooted at dir, creating the directory if needed.
// Pass nil logger for default.
func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, errors.New("collections directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating collections directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{dir: dir, logger: logger.With("component", "collection_store")}, nil
}

// Dir returns the directory collections are stored in.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+fileExt)
}

// Load reads a collection by id.
func (s *Store) Load(id string) (*Collection, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reading collection %s: %w", id, err)
	}

	var c Collection
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing collection %s: %w", id, err)
	}
	return &c, nil
}

// Save writes c atomically.
func (s *Store) Save(c *Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(c)
}

func (s *Store) save(c *Collection) error {
	if err := ValidateID(c.ID); err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(schemaHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding collection %s: %w", c.ID, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding collection %s: %w", c.ID, err)
	}

	tmp, err := os.CreateTemp(s.dir, c.ID+fileExt+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing collection %s: %w", c.ID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path(c.ID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming collection %s: %w", c.ID, err)
	}

	s.logger.Debug("collection saved", "collection_id", c.ID, "requests", len(c.Requests))
	return nil
}

// Update loads a collection, applies fn, and saves the result. Concurrent
// updates are serialized so none is lost. If fn returns an error nothing is
// written.
func (s *Store) Update(id string, fn func(*Collection) error) (*Collection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.Load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := s.save(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a collection by id. It waits for any Update in progress,
// so a deleted collection is never written back.
func (s *Store) Delete(id string) error {
	if err := ValidateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("deleting collection %s: %w", id, err)
	}
	s.logger.Debug("collection deleted", "collection_id", id)
	return nil
}

// List returns summaries of every stored collection sorted by name.
// Unreadable files are logged and skipped.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading collections directory: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) || strings.HasPrefix(name, ".") {
			continue
		}
		id := strings.TrimSuffix(name, fileExt)
		c, err := s.Load(id)
		if err != nil {
			s.logger.Warn("skipping unreadable collection", "file", name, "error", err)
			continue
		}
		summaries = append(summaries, c.Summary())
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries, nil
}
