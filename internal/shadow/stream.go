package shadow

import (
	"context"
	"sync"
)

// Stream broadcasts the merged shadow document to subscribers.
//
// It keeps the most recent non-nil document as its current value; new
// subscribers receive it immediately. Subscriber channels are conflating:
// a slow consumer observes the latest document rather than blocking the
// publisher or accumulating stale intermediate versions.
type Stream struct {
	mu      sync.Mutex
	current Document
	subs    map[int]chan Document
	nextID  int
}

// NewStream creates a stream with no current value.
func NewStream() *Stream {
	return &Stream{
		subs: make(map[int]chan Document),
	}
}

// Publish replaces the current document and fans it out to subscribers.
// Nil documents are ignored; the current value never reverts to nil.
func (s *Stream) Publish(doc Document) {
	if doc == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = doc
	for _, ch := range s.subs {
		// Conflate: drop the undelivered previous value, keep the latest.
		select {
		case <-ch:
		default:
		}
		ch <- doc
	}
}

// Subscribe returns a channel yielding the current document (if one exists)
// followed by every subsequent published document, and a cancel function
// that releases the subscription and closes the channel, ending consumer
// range loops. Cancel is idempotent.
func (s *Stream) Subscribe() (<-chan Document, func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan Document, 1)
	if s.current != nil {
		ch <- s.current
	}
	s.subs[id] = ch
	s.mu.Unlock()

	cancel := func() {
		// Publish sends under the same lock, so closing here cannot race
		// a concurrent send.
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Current returns the most recently published document, or false if
// nothing has been published yet.
func (s *Stream) Current() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.current != nil
}

// First resolves with the next observable value: the current document if
// one exists, otherwise the first one published. It suspends until then or
// until ctx is done.
func (s *Stream) First(ctx context.Context) (Document, error) {
	ch, cancel := s.Subscribe()
	defer cancel()

	select {
	case doc := <-ch:
		return doc, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
