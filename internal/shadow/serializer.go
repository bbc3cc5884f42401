package shadow

import (
	"fmt"
	"sync"
	"time"
)

// submissionQueueSize bounds how many updates may wait behind the active
// one before Submit blocks the caller.
const submissionQueueSize = 16

// ResultStatus is the terminal outcome class of one update submission.
type ResultStatus int

const (
	// StatusAcknowledged means the remote accepted the update.
	StatusAcknowledged ResultStatus = iota

	// StatusFailed means the update could not be issued or was rejected.
	StatusFailed

	// StatusTimedOut means no correlated response arrived in time. The
	// request is abandoned locally, not cancelled at the transport.
	StatusTimedOut
)

// String returns the lowercase name of the status.
func (s ResultStatus) String() string {
	switch s {
	case StatusAcknowledged:
		return "acknowledged"
	case StatusFailed:
		return "failed"
	case StatusTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Result is the terminal outcome of one update submission.
type Result struct {
	Status ResultStatus

	// State is the acknowledgment's {reported, desired} pair when
	// Status is StatusAcknowledged.
	State ShadowState

	// Err is the cause for StatusFailed and StatusTimedOut.
	Err error
}

// Serializer funnels all outbound mutations for one device through a
// single worker goroutine, guaranteeing that updates reach the transport
// in submission order with at most one in flight at a time. A failed or
// timed-out submission never blocks the next one.
type Serializer struct {
	session *Session
	corr    *Registry
	timeout time.Duration
	logger  Logger

	mu          sync.Mutex
	closed      bool
	submissions chan submission
}

// submission pairs one queued change with its pending result.
type submission struct {
	change Document
	result chan Result
}

// NewSerializer creates a serializer for the session and starts its
// worker. timeout is the per-update acknowledgment deadline.
func NewSerializer(session *Session, corr *Registry, timeout time.Duration, logger Logger) *Serializer {
	if logger == nil {
		logger = noopLogger{}
	}
	s := &Serializer{
		session:     session,
		corr:        corr,
		timeout:     timeout,
		logger:      logger,
		submissions: make(chan submission, submissionQueueSize),
	}
	go s.run()
	return s
}

// Submit queues a desired-state change and returns a channel that yields
// its terminal Result exactly once. Submissions are applied to the remote
// in the exact order Submit was called; each waits behind the previous
// submission's terminal outcome. Submitting to a closed serializer
// resolves immediately with StatusFailed and ErrClosed.
func (s *Serializer) Submit(change Document) <-chan Result {
	result := make(chan Result, 1)

	// The lock spans the queue send so Close cannot close the channel
	// between the check and the send.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		result <- Result{Status: StatusFailed, Err: ErrClosed}
		return result
	}
	s.submissions <- submission{change: change, result: result}
	s.mu.Unlock()

	return result
}

// Close stops the worker once queued submissions have drained. Idempotent.
func (s *Serializer) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.submissions)
	s.mu.Unlock()
}

// run drains the queue one submission at a time.
func (s *Serializer) run() {
	for sub := range s.submissions {
		res := s.process(sub.change)
		if res.Err != nil {
			s.logger.Warn("shadow update did not complete",
				"thing_id", s.session.ThingID(),
				"status", res.Status.String(),
				"error", res.Err,
			)
		}
		// Buffered; never blocks.
		sub.result <- res
	}
}

// process issues one update and waits for its terminal outcome: the
// correlated acknowledgment, a rejection, or the deadline.
func (s *Serializer) process(change Document) Result {
	conn := s.session.Connection()
	if conn == nil {
		return Result{Status: StatusFailed, Err: ErrNoConnection}
	}

	token := NewToken()

	// Register before publishing so the acknowledgment cannot outrun
	// the waiter.
	wait := s.corr.WaitFor(token)

	if err := conn.PublishUpdate(s.session.ThingID(), token, change); err != nil {
		s.corr.Cancel(token)
		return Result{Status: StatusFailed, Err: fmt.Errorf("publishing update: %w", err)}
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case resp := <-wait:
		if resp.Err != nil {
			return Result{Status: StatusFailed, State: resp.State, Err: resp.Err}
		}
		return Result{Status: StatusAcknowledged, State: resp.State}
	case <-timer.C:
		// A late response becomes a registry no-op.
		s.corr.Cancel(token)
		return Result{Status: StatusTimedOut, Err: ErrUpdateTimeout}
	}
}
