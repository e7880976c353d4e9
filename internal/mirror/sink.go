package mirror

import (
	"context"
	"time"
)

// Sink is the fire-and-forget write interface the orchestrator uses.
type Sink interface {
	// Set replaces the value at path. A nil value deletes it.
	Set(path string, value any)

	// Push appends value under path.
	Push(path string, value any)
}

// Backend is a storage target behind the Writer.
type Backend interface {
	Name() string
	Set(ctx context.Context, path string, value any, at time.Time) error
	Push(ctx context.Context, path string, entry Entry) error
}

// Entry is one appended record.
type Entry struct {
	ID    string    `json:"id"`
	Path  string    `json:"-"`
	At    time.Time `json:"at"`
	Value any       `json:"value"`
}

// WatchFunc receives the raw payload written at a watched path. An empty
// payload means the path was deleted.
type WatchFunc func(path string, payload []byte)

// Watcher observes mirror paths written by other parties (remote UIs,
// configuration pushes).
type Watcher interface {
	Watch(path string, fn WatchFunc) error
}

// Discard is a Sink that drops every write.
var Discard Sink = discard{}

type discard struct{}

func (discard) Set(string, any)  {}
func (discard) Push(string, any) {}
