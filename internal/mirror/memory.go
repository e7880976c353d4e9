package mirror

import (
	"sync"
)

// Write is one recorded Set or Push.
type Write struct {
	Op    string // "set" or "push"
	Path  string
	Value any
}

// Memory is an in-process Sink that records every write. It backs the
// validate command's dry runs and the package tests of its callers.
type Memory struct {
	mu     sync.Mutex
	writes []Write
	state  map[string]any
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{state: make(map[string]any)}
}

// Set records a Set.
func (m *Memory) Set(path string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, Write{Op: "set", Path: path, Value: value})
	if value == nil {
		delete(m.state, path)
		return
	}
	m.state[path] = value
}

// Push records a Push.
func (m *Memory) Push(path string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, Write{Op: "push", Path: path, Value: value})
}

// Get returns the current value at path.
func (m *Memory) Get(path string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state[path]
	return v, ok
}

// Writes returns a copy of every recorded write in order.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// Count returns how many writes of op ("set" or "push") hit path.
func (m *Memory) Count(op, path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, w := range m.writes {
		if w.Op == op && w.Path == path {
			n++
		}
	}
	return n
}

// Pushes returns the values pushed to path in order.
func (m *Memory) Pushes(path string) []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []any
	for _, w := range m.writes {
		if w.Op == "push" && w.Path == path {
			out = append(out, w.Value)
		}
	}
	return out
}
