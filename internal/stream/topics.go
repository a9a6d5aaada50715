// ABOUTME: Glob-based topic filters for stream subscriptions
// ABOUTME: An empty filter or a "*" pattern matches every topic

package stream

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// TopicFilter matches topics against a set of glob patterns.
type TopicFilter struct {
	patterns []string
	globs    []glob.Glob
	all      bool
}

// NewTopicFilter compiles patterns. Blank patterns are ignored.
func NewTopicFilter(patterns []string) (*TopicFilter, error) {
	f := &TopicFilter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if p == "*" {
			f.all = true
		}
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compiling topic pattern %q: %w", p, err)
		}
		f.patterns = append(f.patterns, p)
		f.globs = append(f.globs, g)
	}
	if len(f.globs) == 0 {
		f.all = true
	}
	return f, nil
}

// ParseTopics splits a comma-separated topic list.
func ParseTopics(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Match reports whether topic passes the filter.
func (f *TopicFilter) Match(topic string) bool {
	if f.all {
		return true
	}
	for _, g := range f.globs {
		if g.Match(topic) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns.
func (f *TopicFilter) Patterns() []string { return f.patterns }
