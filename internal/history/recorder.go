package history

import (
	"sync"

	"github.com/tmarren/shadow-core/internal/shadow"
)

// Sink receives flattened shadow state points. Satisfied by
// *influxdb.Client.
type Sink interface {
	WriteShadowState(thingID string, fields map[string]any)
}

// Source is one observable device. Satisfied by *shadow.Device.
type Source interface {
	Identity() shadow.Identity
	Watch() (<-chan shadow.Document, func())
}

// Recorder consumes device watch streams and writes each observed
// document version to the sink.
type Recorder struct {
	sink   Sink
	logger shadow.Logger

	mu      sync.Mutex
	cancels []func()
	closed  bool
	wg      sync.WaitGroup
}

// NewRecorder creates a recorder writing to sink. logger may be nil.
func NewRecorder(sink Sink, logger shadow.Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		sink:   sink,
		logger: logger,
	}
}

// Track starts recording a device's document transitions. Tracking ends
// when Close is called.
func (r *Recorder) Track(src Source) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	events, cancel := src.Watch()
	r.cancels = append(r.cancels, cancel)
	r.wg.Add(1)
	r.mu.Unlock()

	thingID := src.Identity().ThingID
	go func() {
		defer r.wg.Done()
		for doc := range events {
			fields := Flatten(doc)
			if len(fields) == 0 {
				continue
			}
			r.sink.WriteShadowState(thingID, fields)
		}
		r.logger.Debug("history stream ended", "thing_id", thingID)
	}()
}

// Close stops all tracking goroutines and waits for them to finish.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	r.wg.Wait()
}

// Flatten reduces a document to its numeric and boolean leaves, keyed by
// dotted path. Strings, nulls, and sequences are omitted: strings are
// unbounded-cardinality, and sequences have no stable field identity.
func Flatten(doc shadow.Document) map[string]any {
	fields := make(map[string]any)
	flattenInto(fields, "", doc)
	return fields
}

func flattenInto(fields map[string]any, prefix string, doc shadow.Document) {
	for key, value := range doc {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		switch v := value.(type) {
		case shadow.Number:
			fields[path] = float64(v)
		case shadow.Bool:
			fields[path] = bool(v)
		case shadow.Document:
			flattenInto(fields, path, v)
		}
	}
}

// noopLogger discards everything.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
