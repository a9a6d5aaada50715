// ABOUTME: Actor attribution for state changes made through the MCP server
// ABOUTME: Maps users, automated system work, and AI agents to ordered participant ids

package participant

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind identifies the category of an actor.
type Kind string

const (
	KindUser   Kind = "user"
	KindSystem Kind = "system"
	KindAI     Kind = "ai"
)

// ID is the participant rank used to break ties between events that carry
// the same sequence number. Lower ranks sort first.
type ID uint8

const (
	IDUser   ID = 0
	IDSystem ID = 1
	IDAI     ID = 2
)

func (id ID) String() string {
	switch id {
	case IDUser:
		return "user"
	case IDSystem:
		return "system"
	case IDAI:
		return "ai"
	default:
		return fmt.Sprintf("participant(%d)", uint8(id))
	}
}

// Actor records who initiated an action. Model and SessionID are only
// meaningful for AI actors.
type Actor struct {
	Kind      Kind
	Model     string
	SessionID string
}

// User returns the human user actor.
func User() Actor { return Actor{Kind: KindUser} }

// System returns the actor for automated, non-AI work.
func System() Actor { return Actor{Kind: KindSystem} }

// AI returns an AI agent actor. Either field may be empty.
func AI(model, sessionID string) Actor {
	return Actor{Kind: KindAI, Model: model, SessionID: sessionID}
}

// ParticipantID maps the actor to its fixed ordering rank.
func (a Actor) ParticipantID() ID {
	switch a.Kind {
	case KindSystem:
		return IDSystem
	case KindAI:
		return IDAI
	default:
		return IDUser
	}
}

func (a Actor) String() string {
	if a.Kind != KindAI {
		return a.ParticipantID().String()
	}
	s := "ai"
	if a.Model != "" {
		s += ":" + a.Model
	}
	if a.SessionID != "" {
		s += "@" + a.SessionID
	}
	return s
}

type actorJSON struct {
	Type      Kind   `json:"type"`
	Model     string `json:"model,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// MarshalJSON encodes the actor as {"type":"user"|"system"|"ai", ...}.
func (a Actor) MarshalJSON() ([]byte, error) {
	out := actorJSON{Type: a.Kind}
	if out.Type == "" {
		out.Type = KindUser
	}
	if a.Kind == KindAI {
		out.Model = a.Model
		out.SessionID = a.SessionID
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the tagged actor form.
func (a *Actor) UnmarshalJSON(data []byte) error {
	var in actorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.Type {
	case KindUser, KindSystem:
		*a = Actor{Kind: in.Type}
	case KindAI:
		*a = AI(in.Model, in.SessionID)
	default:
		return fmt.Errorf("unknown actor type %q", in.Type)
	}
	return nil
}

type actorKey struct{}

// WithActor returns a context carrying the actor to attribute work to.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// FromContext returns the actor stored in ctx, if any.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
