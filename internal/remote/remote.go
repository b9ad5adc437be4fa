// Package remote delivers queued mutations to the backend. A Pusher is
// called once per queue item; any returned error counts as a failed attempt
// and the caller decides whether to retry.
package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matheus3301/fieldsync/internal/store"
)

// Mutation is the wire form of one queue item.
type Mutation struct {
	ItemID      string          `json:"-"`
	ObjectStore string          `json:"objectStore"`
	RecordID    string          `json:"recordId"`
	Operation   store.Operation `json:"operation"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// FromQueueItem builds the mutation for a queue item.
func FromQueueItem(item store.QueueItem) Mutation {
	return Mutation{
		ItemID:      item.ID,
		ObjectStore: item.ObjectStore,
		RecordID:    item.RecordID,
		Operation:   item.Operation,
		Payload:     item.Payload,
	}
}

// Pusher sends one mutation to the remote backend.
type Pusher interface {
	Push(ctx context.Context, m Mutation) error
}

// PusherFunc adapts a function to Pusher.
type PusherFunc func(ctx context.Context, m Mutation) error

func (f PusherFunc) Push(ctx context.Context, m Mutation) error { return f(ctx, m) }

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote: status %d", e.Code)
	}
	return fmt.Sprintf("remote: status %d: %s", e.Code, e.Body)
}

// Config selects and configures a backend.
type Config struct {
	Driver  string // "http" or "s3"
	BaseURL string
	S3      S3Config
}

// New returns the backend named by cfg.Driver.
func New(ctx context.Context, cfg Config, opts ...HTTPOption) (Pusher, error) {
	switch cfg.Driver {
	case "", "http":
		return NewHTTP(cfg.BaseURL, opts...)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("remote: unknown driver %q", cfg.Driver)
	}
}
