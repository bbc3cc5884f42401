package shadow

import (
	"sync"
	"testing"
	"time"
)

// mustDoc builds a Document from plain Go values, failing the test on
// malformed input.
func mustDoc(t *testing.T, m map[string]any) Document {
	t.Helper()
	doc, err := FromAny(m)
	if err != nil {
		t.Fatalf("FromAny(%v) error = %v", m, err)
	}
	return doc
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// fakeUpdate records one PublishUpdate call.
type fakeUpdate struct {
	thingID string
	token   string
	desired Document
}

// fakeConn is a scripted Connection for engine tests. Events pushed with
// emit() are delivered on the single ordered stream, as the transport
// contract requires.
type fakeConn struct {
	mu sync.Mutex

	events chan Event

	stateTokens []string
	updates     []fakeUpdate

	subscribeErr error
	requestErr   error
	publishErr   error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		events: make(chan Event, 64),
	}
}

func (c *fakeConn) Subscribe(string) (<-chan Event, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	return c.events, nil
}

func (c *fakeConn) RequestState(thingID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requestErr != nil {
		return c.requestErr
	}
	c.stateTokens = append(c.stateTokens, token)
	return nil
}

func (c *fakeConn) PublishUpdate(thingID, token string, desired Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.updates = append(c.updates, fakeUpdate{thingID: thingID, token: token, desired: desired})
	return nil
}

func (c *fakeConn) emit(ev Event) {
	c.events <- ev
}

func (c *fakeConn) stateTokenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stateTokens)
}

func (c *fakeConn) lastStateToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stateTokens) == 0 {
		return ""
	}
	return c.stateTokens[len(c.stateTokens)-1]
}

func (c *fakeConn) updateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.updates)
}

func (c *fakeConn) update(i int) fakeUpdate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.updates[i]
}
