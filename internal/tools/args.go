// ABOUTME: Argument extraction helpers for tool calls
// ABOUTME: Produces the user-facing messages for missing or malformed parameters

package tools

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/net/http/httpguts"

	"github.com/2389/runi-mcp/internal/collection"
)

// Args are the decoded "arguments" object of a tools/call request.
type Args map[string]any

func (a Args) requireString(key string) (string, error) {
	v, ok := a[key].(string)
	if !ok {
		return "", fmt.Errorf("Missing required parameter: %s", key)
	}
	return v, nil
}

func (a Args) optionalString(key string) (string, bool) {
	v, ok := a[key].(string)
	return v, ok
}

// optionalUint reads a non-negative integer. JSON numbers arrive as float64.
func (a Args) optionalUint(key string, def uint64) (uint64, error) {
	raw, ok := a[key]
	if !ok || raw == nil {
		return def, nil
	}
	f, ok := raw.(float64)
	if !ok || f < 0 || f != math.Trunc(f) || f > math.MaxInt64 {
		return 0, fmt.Errorf("Invalid parameter: %s must be a non-negative integer", key)
	}
	return uint64(f), nil
}

func (a Args) collectionID() (string, error) {
	id, err := a.requireString("collection_id")
	if err != nil {
		return "", err
	}
	return id, validateCollectionID(id)
}

func validateCollectionID(id string) error {
	if err := collection.ValidateID(id); err != nil {
		return errors.New(describe(err, id))
	}
	return nil
}

// validMethod reports whether m can be sent as an HTTP request method. Any
// token is accepted, including TRACE, CONNECT and extension methods.
func validMethod(m string) bool {
	return httpguts.ValidHeaderFieldName(m)
}

// describe turns store and validation errors into tool error text.
func describe(err error, collectionID string) string {
	switch {
	case errors.Is(err, collection.ErrEmptyID):
		return "Collection ID cannot be empty"
	case errors.Is(err, collection.ErrInvalidID):
		return fmt.Sprintf("Invalid collection ID: '%s' (only letters, digits, '-' and '_' are allowed)", collectionID)
	case errors.Is(err, collection.ErrNotFound):
		return "Collection not found: " + collectionID
	default:
		return err.Error()
	}
}
