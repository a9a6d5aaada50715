// ABOUTME: Tool dispatch service executing MCP tool calls against the collection store
// ABOUTME: Emits actor-attributed, sequence-stamped events for every state change

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/runi-mcp/internal/collection"
	"github.com/2389/runi-mcp/internal/events"
	"github.com/2389/runi-mcp/internal/httpexec"
	"github.com/2389/runi-mcp/internal/participant"
)

// DefaultModel is the generator model recorded on AI-created requests.
const DefaultModel = "mcp"

// Store is the collection persistence the service needs.
type Store interface {
	Load(id string) (*collection.Collection, error)
	Save(c *collection.Collection) error
	List() ([]collection.Summary, error)
	Delete(id string) error
	Update(id string, fn func(*collection.Collection) error) (*collection.Collection, error)
}

// Config holds the service's collaborators.
type Config struct {
	Store    Store
	Executor httpexec.Executor
	Emitter  events.Emitter
	Logger   *slog.Logger
	Model    string // defaults to DefaultModel
}

// Service executes the tools in the catalog. Apart from ordering event
// emission it holds no locks; callers coordinate access around it.
type Service struct {
	store    Store
	executor httpexec.Executor
	emitter  events.Emitter
	counter  *participant.SeqCounter
	model    string
	logger   *slog.Logger

	emitMu sync.Mutex // stamp and emit together so delivery follows seq
}

// NewService creates a service from cfg.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}

	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.Discard
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:    cfg.Store,
		executor: cfg.Executor,
		emitter:  emitter,
		counter:  participant.NewSeqCounter(),
		model:    model,
		logger:   logger.With("component", "tools"),
	}, nil
}

// Tools returns the tool catalog.
func (s *Service) Tools() []mcp.Tool { return Catalog() }

// Counter exposes the service's sequence counter.
func (s *Service) Counter() *participant.SeqCounter { return s.counter }

// CallTool runs a tool to completion. Failures are reported in the result
// with IsError set; the returned result is never nil.
func (s *Service) CallTool(ctx context.Context, name string, args Args) *mcp.CallToolResult {
	if args == nil {
		args = Args{}
	}

	var (
		text string
		err  error
	)
	switch name {
	case CreateCollection:
		text, err = s.createCollection(ctx, args)
	case ListCollections:
		text, err = s.listCollections()
	case AddRequest:
		text, err = s.addRequest(ctx, args)
	case UpdateRequest:
		text, err = s.updateRequest(ctx, args)
	case DeleteCollection:
		text, err = s.deleteCollection(ctx, args)
	case ExecuteRequest:
		return s.Execute(ctx, args)
	default:
		err = fmt.Errorf("Unknown tool: %s", name)
	}

	if err != nil {
		s.logger.Debug("tool failed", "tool", name, "error", err)
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(text)
}

// actor returns who the current call is attributed to.
func (s *Service) actor(ctx context.Context) participant.Actor {
	if a, ok := participant.FromContext(ctx); ok {
		return a
	}
	return participant.AI(s.model, "")
}

// emit stamps and publishes an event. Emission failures are logged; the
// state change they describe has already happened.
func (s *Service) emit(ctx context.Context, name, correlationID string, payload any) {
	actor := s.actor(ctx)
	env, err := events.NewEnvelope(name, actor, payload)
	if err != nil {
		s.logger.Error("failed to build event", "event", name, "error", err)
		return
	}
	if correlationID != "" {
		env = env.WithCorrelation(correlationID)
	}

	s.emitMu.Lock()
	defer s.emitMu.Unlock()
	env = env.WithLamport(participant.Stamp(actor, s.counter))
	if err := s.emitter.Emit(ctx, env); err != nil {
		s.logger.Warn("failed to emit event", "event", name, "error", err)
	}
}

func toJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding result: %w", err)
	}
	return string(data), nil
}

func (s *Service) createCollection(ctx context.Context, args Args) (string, error) {
	name, err := args.requireString("name")
	if err != nil {
		return "", err
	}

	c := collection.New(name)
	if err := s.store.Save(c); err != nil {
		return "", fmt.Errorf("Failed to save collection: %v", err)
	}

	s.logger.Info("collection created", "collection_id", c.ID, "name", name)
	s.emit(ctx, events.CollectionCreated, "", map[string]string{
		"collection_id": c.ID,
		"name":          name,
	})

	return toJSON(map[string]string{
		"id":      c.ID,
		"name":    name,
		"message": fmt.Sprintf("Collection '%s' created successfully", name),
	})
}

type listEntry struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	RequestCount int    `json:"request_count"`
}

func (s *Service) listCollections() (string, error) {
	summaries, err := s.store.List()
	if err != nil {
		return "", fmt.Errorf("Failed to list collections: %v", err)
	}
	entries := make([]listEntry, len(summaries))
	for i, sum := range summaries {
		entries[i] = listEntry{ID: sum.ID, Name: sum.Name, RequestCount: sum.RequestCount}
	}
	return toJSON(entries)
}

func (s *Service) addRequest(ctx context.Context, args Args) (string, error) {
	collectionID, err := args.requireString("collection_id")
	if err != nil {
		return "", err
	}
	name, err := args.requireString("name")
	if err != nil {
		return "", err
	}
	method, err := args.requireString("method")
	if err != nil {
		return "", err
	}
	url, err := args.requireString("url")
	if err != nil {
		return "", err
	}
	if err := validateCollectionID(collectionID); err != nil {
		return "", err
	}
	if !validMethod(method) {
		return "", fmt.Errorf("Invalid HTTP method: %s", method)
	}

	req := collection.NewRequest(name, method, url)
	req.Intelligence = collection.Intelligence{AIGenerated: true, GeneratorModel: s.model}

	if _, err := s.store.Update(collectionID, func(c *collection.Collection) error {
		c.AddRequest(req)
		return nil
	}); err != nil {
		return "", errors.New(describe(err, collectionID))
	}

	s.logger.Info("request added", "collection_id", collectionID, "request_id", req.ID)
	s.emit(ctx, events.RequestAdded, "", map[string]string{
		"collection_id": collectionID,
		"request_id":    req.ID,
		"name":          name,
		"method":        req.Method,
		"url":           url,
	})

	return toJSON(map[string]string{
		"request_id":    req.ID,
		"collection_id": collectionID,
		"message":       fmt.Sprintf("Request '%s' added to collection", name),
	})
}

func (s *Service) updateRequest(ctx context.Context, args Args) (string, error) {
	collectionID, err := args.requireString("collection_id")
	if err != nil {
		return "", err
	}
	requestID, err := args.requireString("request_id")
	if err != nil {
		return "", err
	}
	if err := validateCollectionID(collectionID); err != nil {
		return "", err
	}

	name, hasName := args.optionalString("name")
	method, hasMethod := args.optionalString("method")
	url, hasURL := args.optionalString("url")
	if hasMethod && !validMethod(method) {
		return "", fmt.Errorf("Invalid HTTP method: %s", method)
	}

	changed := []string{}
	_, err = s.store.Update(collectionID, func(c *collection.Collection) error {
		r, err := c.FindRequest(requestID)
		if err != nil {
			return err
		}
		if hasName {
			r.Name = name
			changed = append(changed, "name")
		}
		if hasMethod {
			r.Method = strings.ToUpper(method)
			changed = append(changed, "method")
		}
		if hasURL {
			r.URL = url
			changed = append(changed, "url")
		}
		c.Touch()
		return nil
	})
	if errors.Is(err, collection.ErrRequestNotFound) {
		return "", fmt.Errorf("Request not found: %s", requestID)
	}
	if err != nil {
		return "", errors.New(describe(err, collectionID))
	}

	s.logger.Info("request updated", "collection_id", collectionID, "request_id", requestID, "fields", changed)
	s.emit(ctx, events.RequestUpdated, "", map[string]any{
		"collection_id": collectionID,
		"request_id":    requestID,
		"fields":        changed,
	})

	return toJSON(map[string]string{
		"request_id": requestID,
		"message":    "Request updated successfully",
	})
}

func (s *Service) deleteCollection(ctx context.Context, args Args) (string, error) {
	collectionID, err := args.collectionID()
	if err != nil {
		return "", err
	}
	if err := s.store.Delete(collectionID); err != nil {
		return "", errors.New(describe(err, collectionID))
	}

	s.logger.Info("collection deleted", "collection_id", collectionID)
	s.emit(ctx, events.CollectionDeleted, "", map[string]string{
		"collection_id": collectionID,
	})

	return toJSON(map[string]string{
		"collection_id": collectionID,
		"message":       fmt.Sprintf("Collection '%s' deleted", collectionID),
	})
}
