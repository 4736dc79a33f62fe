// Package audit emits structured audit events for security-relevant actions.
package audit

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"rexcards.org/internal/identity"
)

type contextKey string

const requestIDKey contextKey = "audit.request_id"

// WithRequestID tags the context so every audit event of the request carries
// the correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Event is a single audit record. Details must never contain credential
// material; callers pass identifiers and outcomes only.
type Event struct {
	Time      time.Time      `json:"ts"`
	Action    string         `json:"action"`
	ActorID   string         `json:"actor_id,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Outcome   string         `json:"outcome"`
	Details   map[string]any `json:"details,omitempty"`
}

var (
	once   sync.Once
	logger *log.Logger
)

func auditLogger() *log.Logger {
	once.Do(func() {
		logger = log.New(os.Stdout, "", 0)
	})
	return logger
}

// Log writes one event. The actor is taken from the authenticated claims on
// the context when present; unauthenticated actions log without an actor.
func Log(ctx context.Context, action, outcome string, details map[string]any) {
	event := Event{
		Time:      time.Now().UTC(),
		Action:    action,
		RequestID: requestIDFrom(ctx),
		Outcome:   outcome,
		Details:   details,
	}
	if claims, ok := identity.ClaimsFromContext(ctx); ok {
		event.ActorID = claims.Subject
	}
	line, err := json.Marshal(event)
	if err != nil {
		auditLogger().Printf(`{"action":%q,"outcome":"marshal_error"}`, action)
		return
	}
	auditLogger().Println(string(line))
}
