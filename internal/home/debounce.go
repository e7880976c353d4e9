package home

import (
	"sort"
	"time"
)

// DebounceEntry is the last value seen for one sensor key.
type DebounceEntry struct {
	Value     string    `json:"value"`
	ChangedAt time.Time `json:"changedAt"`
}

// Debouncer suppresses repeated sensor values. It is not safe for
// concurrent use; the dispatcher goroutine owns it.
type Debouncer struct {
	entries map[string]DebounceEntry
	now     func() time.Time
}

// NewDebouncer creates an empty Debouncer.
func NewDebouncer() *Debouncer {
	return &Debouncer{entries: make(map[string]DebounceEntry), now: time.Now}
}

// Observe records value for key. It returns false when value equals the
// stored value, and otherwise true with the previous value ("" if none).
func (d *Debouncer) Observe(key, value string) (changed bool, prev string) {
	e, ok := d.entries[key]
	if ok && e.Value == value {
		return false, e.Value
	}
	d.entries[key] = DebounceEntry{Value: value, ChangedAt: d.now()}
	return true, e.Value
}

// Get returns the entry for key.
func (d *Debouncer) Get(key string) (DebounceEntry, bool) {
	e, ok := d.entries[key]
	return e, ok
}

// WithPrefix returns the entries whose key starts with prefix, keyed by the
// rest of the key.
func (d *Debouncer) WithPrefix(prefix string) map[string]string {
	out := make(map[string]string)
	for key, e := range d.entries {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out[key[len(prefix):]] = e.Value
		}
	}
	return out
}

// Keys returns every tracked key, sorted.
func (d *Debouncer) Keys() []string {
	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
