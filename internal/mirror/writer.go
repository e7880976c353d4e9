package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/metrics"
)

const defaultBackendTimeout = 5 * time.Second

// Logger defines the logging interface used by the Writer.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type op struct {
	push  bool
	path  string
	value any
	entry Entry
	at    time.Time
}

// Writer is the asynchronous Sink in front of the backends.
//
// Set and Push enqueue without blocking; when the queue is full the write
// is dropped and logged. A single goroutine (Run) applies writes in order to
// every backend, so writes to one path are never reordered.
type Writer struct {
	backends []Backend
	queue    chan op
	logger   Logger
	metrics  *metrics.Recorder
	now      func() time.Time
	timeout  time.Duration

	stampPath string

	mu      sync.RWMutex
	closed  bool
	onError func(backend, path string, err error)

	done chan struct{}
}

// NewWriter creates a Writer with a queue of queueSize writes.
func NewWriter(queueSize int, logger Logger, backends ...Backend) *Writer {
	if logger == nil {
		logger = noopLogger{}
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Writer{
		backends: backends,
		queue:    make(chan op, queueSize),
		logger:   logger,
		now:      time.Now,
		timeout:  defaultBackendTimeout,
		done:     make(chan struct{}),
	}
}

// SetMetrics sets the metrics recorder.
func (w *Writer) SetMetrics(rec *metrics.Recorder) {
	w.metrics = rec
}

// SetLastUpdated makes Run set path to the time of the latest write each
// time the queue drains, so a burst of writes costs one stamp. Call before
// Run.
func (w *Writer) SetLastUpdated(path string) {
	w.stampPath = path
}

// SetOnError sets a callback invoked for every failed backend write, in
// addition to the warning log.
func (w *Writer) SetOnError(fn func(backend, path string, err error)) {
	w.mu.Lock()
	w.onError = fn
	w.mu.Unlock()
}

// Set enqueues a Set.
func (w *Writer) Set(path string, value any) {
	w.enqueue(op{path: path, value: value, at: w.now()})
}

// Push enqueues a Push. The entry ID and timestamp are assigned here.
func (w *Writer) Push(path string, value any) {
	at := w.now()
	w.enqueue(op{
		push:  true,
		path:  path,
		at:    at,
		entry: Entry{ID: uuid.NewString(), Path: path, At: at, Value: value},
	})
}

func (w *Writer) enqueue(o op) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return
	}

	select {
	case w.queue <- o:
	default:
		w.logger.Warn("mirror queue full, dropping write", "path", o.path)
		w.metrics.Incr(metrics.MirrorDropped)
	}
}

// Run applies queued writes until ctx is cancelled, then drains what is
// already queued and returns.
func (w *Writer) Run(ctx context.Context) {
	defer close(w.done)

	var pending *op
	for {
		select {
		case o := <-w.queue:
			w.apply(o)
			pending = w.stampAfter(o, pending)
		case <-ctx.Done():
			w.mu.Lock()
			w.closed = true
			w.mu.Unlock()
			for {
				select {
				case o := <-w.queue:
					w.apply(o)
					pending = w.stampAfter(o, pending)
				default:
					if pending != nil {
						w.stamp(*pending)
					}
					return
				}
			}
		}
	}
}

// stampAfter remembers o as the latest write and stamps once the queue is
// empty. It returns the write still waiting for a stamp.
func (w *Writer) stampAfter(o op, pending *op) *op {
	if w.stampPath == "" {
		return nil
	}
	if o.path != w.stampPath {
		pending = &o
	}
	if pending == nil || len(w.queue) > 0 {
		return pending
	}
	w.stamp(*pending)
	return nil
}

func (w *Writer) stamp(o op) {
	w.apply(op{
		path: w.stampPath,
		value: map[string]any{
			"epochMs": o.at.UnixMilli(),
			"time":    o.at.UTC().Format(time.RFC3339),
		},
		at: o.at,
	})
}

// Done is closed when Run has returned.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

func (w *Writer) apply(o op) {
	for _, b := range w.backends {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		var err error
		if o.push {
			err = b.Push(ctx, o.path, o.entry)
		} else {
			err = b.Set(ctx, o.path, o.value, o.at)
		}
		cancel()

		if err != nil {
			w.fail(b.Name(), o.path, err)
		}
	}
}

func (w *Writer) fail(backend, path string, err error) {
	w.logger.Warn("mirror write failed", "backend", backend, "path", path, "error", err)
	w.metrics.Incr(metrics.MirrorWriteFailed, metrics.Tag("backend", backend))

	w.mu.RLock()
	fn := w.onError
	w.mu.RUnlock()
	if fn != nil {
		fn(backend, path, err)
	}
}
