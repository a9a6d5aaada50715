// ABOUTME: Collection and request data model persisted as YAML files
// ABOUTME: Includes id generation, id validation, and request sequencing helpers

package collection

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SchemaURL is the JSON schema advertised in every collection file.
const SchemaURL = "https://runi.dev/schema/collection/v1.json"

// SchemaVersion is the collection format version written by this package.
const SchemaVersion = 1

// TimeFormat is the timestamp layout used in collection files.
const TimeFormat = "2006-01-02T15:04:05Z"

// Collection errors
var (
	ErrNotFound        = errors.New("collection not found")
	ErrRequestNotFound = errors.New("request not found")
	ErrEmptyID         = errors.New("collection id is empty")
	ErrInvalidID       = errors.New("invalid collection id")
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidateID rejects ids that could escape the collections directory.
func ValidateID(id string) error {
	if id == "" {
		return ErrEmptyID
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return nil
}

// SourceType records how a collection came into existence.
type SourceType string

const (
	SourceManual  SourceType = "manual"
	SourceOpenAPI SourceType = "openapi"
	SourceURL     SourceType = "url"
)

// Collection is a named, ordered set of API requests.
type Collection struct {
	Schema    string            `yaml:"$schema"`
	Version   int               `yaml:"version"`
	ID        string            `yaml:"id"`
	Metadata  Metadata          `yaml:"metadata"`
	Source    Source            `yaml:"source"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Requests  []Request         `yaml:"requests,omitempty"`
}

// Metadata holds the user-facing description of a collection.
type Metadata struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	CreatedAt   string   `yaml:"created_at"`
	ModifiedAt  string   `yaml:"modified_at"`
}

// Source describes where a collection's contents came from.
type Source struct {
	SourceType   SourceType `yaml:"source_type"`
	URL          string     `yaml:"url,omitempty"`
	Hash         string     `yaml:"hash,omitempty"`
	SpecVersion  string     `yaml:"spec_version,omitempty"`
	FetchedAt    string     `yaml:"fetched_at"`
	SourceCommit string     `yaml:"source_commit,omitempty"`
}

// Request is one saved HTTP request.
type Request struct {
	ID           string            `yaml:"id"`
	Name         string            `yaml:"name"`
	Seq          int               `yaml:"seq"`
	Method       string            `yaml:"method"`
	URL          string            `yaml:"url"`
	Headers      map[string]string `yaml:"headers,omitempty"`
	Params       []Param           `yaml:"params,omitempty"`
	Body         *Body             `yaml:"body,omitempty"`
	Docs         string            `yaml:"docs,omitempty"`
	IsStreaming  bool              `yaml:"is_streaming,omitempty"`
	Intelligence Intelligence      `yaml:"intelligence"`
	Tags         []string          `yaml:"tags,omitempty"`
}

// Param is a query parameter.
type Param struct {
	Key     string `yaml:"key"`
	Value   string `yaml:"value"`
	Enabled bool   `yaml:"enabled"`
}

// Body is a request body.
type Body struct {
	Type    string `yaml:"type"`
	Content string `yaml:"content"`
}

// Intelligence records AI provenance for a request.
type Intelligence struct {
	AIGenerated    bool   `yaml:"ai_generated"`
	GeneratorModel string `yaml:"generator_model,omitempty"`
	Verified       *bool  `yaml:"verified,omitempty"`
}

// Summary is the listing view of a collection.
type Summary struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	RequestCount int        `json:"request_count"`
	SourceType   SourceType `json:"source_type"`
	ModifiedAt   string     `json:"modified_at"`
}

// New creates an empty, manually sourced collection.
func New(name string) *Collection {
	now := Now()
	return &Collection{
		Schema:  SchemaURL,
		Version: SchemaVersion,
		ID:      generateID("col", name, 0),
		Metadata: Metadata{
			Name:       name,
			CreatedAt:  now,
			ModifiedAt: now,
		},
		Source: Source{
			SourceType: SourceManual,
			FetchedAt:  now,
		},
	}
}

// NewRequest creates a request with a fresh id. The method is uppercased.
func NewRequest(name, method, url string) Request {
	return Request{
		ID:     generateID("req", name, 10),
		Name:   name,
		Method: strings.ToUpper(method),
		URL:    url,
	}
}

// NextSeq returns the sequence number for a newly appended request.
func (c *Collection) NextSeq() int {
	highest := 0
	for _, r := range c.Requests {
		if r.Seq > highest {
			highest = r.Seq
		}
	}
	return highest + 1
}

// AddRequest appends r with the next sequence number and returns its id.
func (c *Collection) AddRequest(r Request) string {
	r.Seq = c.NextSeq()
	c.Requests = append(c.Requests, r)
	c.Touch()
	return r.ID
}

// FindRequest returns a pointer into c.Requests for the given id.
func (c *Collection) FindRequest(id string) (*Request, error) {
	for i := range c.Requests {
		if c.Requests[i].ID == id {
			return &c.Requests[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
}

// Touch bumps the modification time.
func (c *Collection) Touch() {
	c.Metadata.ModifiedAt = Now()
}

// Summary returns the listing view of c.
func (c *Collection) Summary() Summary {
	return Summary{
		ID:           c.ID,
		Name:         c.Metadata.Name,
		RequestCount: len(c.Requests),
		SourceType:   c.Source.SourceType,
		ModifiedAt:   c.Metadata.ModifiedAt,
	}
}

// Now returns the current UTC time in TimeFormat.
func Now() string {
	return time.Now().UTC().Format(TimeFormat)
}

// generateID builds "<prefix>_<slug>_<8 hex>". A positive maxSlug truncates
// the slug. The result always satisfies ValidateID.
func generateID(prefix, name string, maxSlug int) string {
	slug := slugify(name)
	if maxSlug > 0 && len(slug) > maxSlug {
		slug = strings.TrimRight(slug[:maxSlug], "_")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if slug == "" {
		return prefix + "_" + suffix
	}
	return prefix + "_" + slug + "_" + suffix
}

func slugify(name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimRight(b.String(), "_")
}
