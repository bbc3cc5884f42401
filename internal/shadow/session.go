package shadow

import (
	"context"
	"fmt"
	"sync"
)

// Session owns the lifecycle against one remote connection attachment: it
// performs the get-current-shadow handshake, consumes the attachment's
// ordered event stream, and feeds the merge model and the correlation
// registry.
//
// All cache mutation happens inside the processing loop, so published
// document versions form a consistent causal sequence even though three
// independent producers (snapshot, foreign pushes, mutation acks)
// contribute to it. The cached document, once non-nil, never reverts
// to nil.
type Session struct {
	thingID string
	corr    *Registry
	stream  *Stream
	logger  Logger

	mu        sync.Mutex
	conn      Connection
	cached    Document
	snapToken string
	snapCh    chan snapshotResult
}

// snapshotResult resolves one RequestSnapshot call.
type snapshotResult struct {
	doc Document
	err error
}

// NewSession creates a session for one thing. Attach must be called before
// any traffic flows.
func NewSession(thingID string, corr *Registry, stream *Stream) *Session {
	return &Session{
		thingID: thingID,
		corr:    corr,
		stream:  stream,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the session.
func (s *Session) SetLogger(logger Logger) {
	s.logger = logger
}

// ThingID returns the identity this session synchronizes.
func (s *Session) ThingID() string {
	return s.thingID
}

// Attach subscribes to the handle's shadow traffic and starts one ordered
// processing loop for it. It is called once at construction time and again
// whenever the connection handle is replaced; the previous loop ends when
// its event channel is closed by the old attachment. Pending state is not
// invalidated by a swap: an old snapshot waiter can still resolve
// harmlessly since its token-space is independent.
func (s *Session) Attach(conn Connection) error {
	events, err := conn.Subscribe(s.thingID)
	if err != nil {
		return fmt.Errorf("subscribing shadow events: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	go s.loop(events)
	return nil
}

// Connection returns the current transport handle, or nil before the first
// Attach.
func (s *Session) Connection() Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// Cached returns the current merged document, or nil before the first
// snapshot.
func (s *Session) Cached() Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cached
}

// RequestSnapshot issues the get-current-shadow handshake and suspends
// until the transport answers or ctx is done. The result is
// Merge(reported, desired) so that authoritative intent overrides the
// last-known-reported value for any field present in both; it is also
// published as the new cached document.
//
// A second call while one is outstanding supersedes the first waiter; the
// superseded call ends with its ctx deadline.
func (s *Session) RequestSnapshot(ctx context.Context) (Document, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil, ErrNoConnection
	}

	token := NewToken()
	ch := make(chan snapshotResult, 1)

	// Register before sending so the answer cannot outrun the waiter.
	s.mu.Lock()
	s.snapToken = token
	s.snapCh = ch
	s.mu.Unlock()

	if err := conn.RequestState(s.thingID, token); err != nil {
		s.mu.Lock()
		if s.snapToken == token {
			s.snapToken = ""
			s.snapCh = nil
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("requesting shadow state: %w", err)
	}

	select {
	case res := <-ch:
		return res.doc, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// loop processes one attachment's events strictly in arrival order.
func (s *Session) loop(events <-chan Event) {
	for ev := range events {
		s.handle(ev)
	}
	s.logger.Debug("shadow event stream closed", "thing_id", s.thingID)
}

func (s *Session) handle(ev Event) {
	if ev.ThingID != "" && ev.ThingID != s.thingID {
		// Traffic for another device; not an error.
		return
	}

	switch ev.Kind {
	case EventLifecycle:
		s.logger.Info("shadow transport lifecycle",
			"thing_id", s.thingID,
			"status", ev.Status,
			"error", ev.Err,
		)
	case EventResponse:
		s.handleResponse(ev)
	case EventForeignChange:
		s.handleForeignChange(ev)
	case EventDiagnostic:
		s.logger.Debug("shadow diagnostic",
			"thing_id", s.thingID,
			"token", ev.Token,
		)
	}
}

// handleResponse routes a token-bearing response: the outstanding snapshot
// request resolves directly, anything else is offered to the correlation
// registry as a mutation result. Stale tokens are dropped.
func (s *Session) handleResponse(ev Event) {
	s.mu.Lock()
	isSnapshot := ev.Token != "" && ev.Token == s.snapToken
	var snapCh chan snapshotResult
	if isSnapshot {
		snapCh = s.snapCh
		s.snapToken = ""
		s.snapCh = nil
	}
	s.mu.Unlock()

	if isSnapshot {
		if ev.Err != nil {
			snapCh <- snapshotResult{err: ev.Err}
			return
		}
		merged := Merge(ev.State.Reported, ev.State.Desired)
		s.replaceCache(merged)
		snapCh <- snapshotResult{doc: merged}
		return
	}

	delivered := s.corr.Deliver(ev.Token, Response{State: ev.State, Err: ev.Err})
	if !delivered {
		// Expected for late timeouts and unrelated correlation IDs.
		s.logger.Debug("dropping uncorrelated response",
			"thing_id", s.thingID,
			"token", ev.Token,
		)
		return
	}
	if ev.Err == nil {
		// A successfully acknowledged local mutation is a publish trigger.
		s.applyChange(ev.State)
	}
}

// handleForeignChange layers a peer-originated change onto the cached
// document: reported changes first, then desired changes on top. It is
// published unconditionally, regardless of whether a mutation is pending;
// last write wins at the document-merge level.
func (s *Session) handleForeignChange(ev Event) {
	s.applyChange(ev.State)
}

// applyChange merges a {reported?, desired?} pair onto the cached document
// and publishes the result. Before the initial snapshot there is nothing
// to merge against, so the change is skipped.
func (s *Session) applyChange(state ShadowState) {
	s.mu.Lock()
	if s.cached == nil {
		s.mu.Unlock()
		s.logger.Debug("change before initial snapshot skipped", "thing_id", s.thingID)
		return
	}
	next := Merge(Merge(s.cached, state.Reported), state.Desired)
	s.cached = next
	s.mu.Unlock()

	s.stream.Publish(next)
}

// replaceCache installs a snapshot result wholesale and publishes it.
func (s *Session) replaceCache(doc Document) {
	s.mu.Lock()
	s.cached = doc
	s.mu.Unlock()

	s.stream.Publish(doc)
}
