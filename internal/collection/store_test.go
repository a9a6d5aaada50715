// ABOUTME: Tests for the YAML collection store and collection helpers
// ABOUTME: Covers round-trips, listing rules, id validation, and serialized updates

package collection

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "collections"), nil)
	require.NoError(t, err)
	return s
}

func TestValidateID(t *testing.T) {
	valid := []string{"col_test_1234abcd", "abc", "A-B_c9"}
	for _, id := range valid {
		assert.NoError(t, ValidateID(id), id)
	}

	assert.ErrorIs(t, ValidateID(""), ErrEmptyID)
	invalid := []string{"../etc/passwd", "a/b", `a\b`, "..", "has space", "col.yaml", "é"}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateID(id), ErrInvalidID, id)
	}
}

func TestNewCollection(t *testing.T) {
	c := New("Test API")
	assert.True(t, strings.HasPrefix(c.ID, "col_test_api_"), c.ID)
	assert.NoError(t, ValidateID(c.ID))
	assert.Equal(t, SourceManual, c.Source.SourceType)
	assert.Equal(t, SchemaVersion, c.Version)
	assert.Equal(t, "Test API", c.Metadata.Name)
	assert.Len(t, c.Metadata.CreatedAt, len(TimeFormat))

	odd := New("  ¿Qué? //  ")
	assert.NoError(t, ValidateID(odd.ID), odd.ID)

	assert.NotEqual(t, New("x").ID, New("x").ID)
}

func TestRequestSequencing(t *testing.T) {
	c := New("seq")
	r1 := NewRequest("List Users Endpoint", "get", "https://example.com/users")
	assert.Equal(t, "GET", r1.Method)
	assert.True(t, strings.HasPrefix(r1.ID, "req_list_users_"), r1.ID)

	c.AddRequest(r1)
	c.AddRequest(NewRequest("b", "post", "/b"))
	assert.Equal(t, 1, c.Requests[0].Seq)
	assert.Equal(t, 2, c.Requests[1].Seq)

	// gaps are preserved: next is max+1, not len+1
	c.Requests[1].Seq = 10
	assert.Equal(t, 11, c.NextSeq())

	got, err := c.FindRequest(r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "List Users Endpoint", got.Name)

	_, err = c.FindRequest("req_missing")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestStoreRoundTrip(t *testing.T) {
	s := newTestStore(t)
	c := New("Round Trip")
	req := NewRequest("health", "GET", "https://example.com/health")
	req.Intelligence = Intelligence{AIGenerated: true, GeneratorModel: "mcp"}
	req.Headers = map[string]string{"Accept": "application/json"}
	c.AddRequest(req)

	require.NoError(t, s.Save(c))

	raw, err := os.ReadFile(filepath.Join(s.Dir(), c.ID+".yaml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "# yaml-language-server: $schema="+SchemaURL))
	assert.Contains(t, string(raw), "source_type: manual")

	loaded, err := s.Load(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c, loaded)
}

func TestStoreNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("col_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete("col_missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Update("col_missing", func(*Collection) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	outside := filepath.Join(filepath.Dir(s.Dir()), "secret.yaml")
	require.NoError(t, os.WriteFile(outside, []byte("id: secret\n"), 0644))

	_, err := s.Load("../secret")
	assert.ErrorIs(t, err, ErrInvalidID)

	err = s.Delete("../secret")
	assert.ErrorIs(t, err, ErrInvalidID)
	assert.FileExists(t, outside)

	err = s.Save(&Collection{ID: "a/b"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestStoreList(t *testing.T) {
	s := newTestStore(t)

	empty, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, empty)

	for _, name := range []string{"Zeta", "Alpha", "Mid"} {
		c := New(name)
		if name == "Mid" {
			c.AddRequest(NewRequest("r", "GET", "/r"))
		}
		require.NoError(t, s.Save(c))
	}

	// noise that List must skip
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "col_x.yaml.tmp-123"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "broken.yaml"), []byte("id: [unclosed"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub.yaml"), 0755))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.Equal(t, "Mid", list[1].Name)
	assert.Equal(t, 1, list[1].RequestCount)
	assert.Equal(t, "Zeta", list[2].Name)
}

func TestStoreDelete(t *testing.T) {
	s := newTestStore(t)
	c := New("gone")
	require.NoError(t, s.Save(c))
	require.NoError(t, s.Delete(c.ID))

	_, err := s.Load(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpdateSerialized(t *testing.T) {
	s := newTestStore(t)
	c := New("busy")
	require.NoError(t, s.Save(c))

	const n = 20
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(c.ID, func(c *Collection) error {
				c.AddRequest(NewRequest(fmt.Sprintf("r%d", i), "GET", "/"))
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	loaded, err := s.Load(c.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Requests, n)
	assert.Equal(t, n+1, loaded.NextSeq())
}

func TestStoreUpdateAbortsOnError(t *testing.T) {
	s := newTestStore(t)
	c := New("stable")
	require.NoError(t, s.Save(c))

	boom := errors.New("boom")
	_, err := s.Update(c.ID, func(c *Collection) error {
		c.Metadata.Name = "changed"
		return boom
	})
	assert.ErrorIs(t, err, boom)

	loaded, err := s.Load(c.ID)
	require.NoError(t, err)
	assert.Equal(t, "stable", loaded.Metadata.Name)
}

func TestStoreDeleteWaitsForUpdate(t *testing.T) {
	s := newTestStore(t)
	c := New("contested")
	require.NoError(t, s.Save(c))

	entered := make(chan struct{})
	release := make(chan struct{})
	updated := make(chan error, 1)
	go func() {
		_, err := s.Update(c.ID, func(c *Collection) error {
			close(entered)
			<-release
			c.AddRequest(NewRequest("late", "GET", "/"))
			return nil
		})
		updated <- err
	}()
	<-entered

	deleted := make(chan error, 1)
	go func() { deleted <- s.Delete(c.ID) }()

	select {
	case err := <-deleted:
		t.Fatalf("delete returned during update: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	require.NoError(t, <-updated)
	require.NoError(t, <-deleted)

	_, err := s.Load(c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = os.Stat(filepath.Join(s.Dir(), c.ID+".yaml"))
	assert.True(t, os.IsNotExist(err))

	_, err = s.Update(c.ID, func(*Collection) error { return nil })
	assert.ErrorIs(t, err, ErrNotFound)
}
