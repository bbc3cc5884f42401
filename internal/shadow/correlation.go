package shadow

import "sync"

// Registry correlates outbound request tokens to pending waiters.
//
// Waiters are one-shot: once resolved, the registration is removed. A
// delivery whose token matches no registered waiter is dropped; that is the
// expected path for unsolicited foreign changes and for responses arriving
// after their waiter timed out. The last registrant for a token wins;
// callers are responsible for issuing unique tokens (see NewToken).
//
// All methods are safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	waiters map[string]chan Response
}

// NewRegistry creates an empty correlation registry.
func NewRegistry() *Registry {
	return &Registry{
		waiters: make(map[string]chan Response),
	}
}

// WaitFor registers interest in a token and returns a channel that yields
// the matching Response exactly once. Deadlines are the caller's concern:
// race the channel against a timer or context and call Cancel on expiry.
func (r *Registry) WaitFor(token string) <-chan Response {
	ch := make(chan Response, 1)
	r.mu.Lock()
	r.waiters[token] = ch
	r.mu.Unlock()
	return ch
}

// Deliver resolves the waiter registered for token, if any, and reports
// whether one existed. Unmatched deliveries are dropped.
func (r *Registry) Deliver(token string, resp Response) bool {
	r.mu.Lock()
	ch, ok := r.waiters[token]
	if ok {
		delete(r.waiters, token)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	// Buffered; never blocks.
	ch <- resp
	return true
}

// Cancel removes a registration without resolving it. Safe to call for
// tokens that were already delivered or never registered.
func (r *Registry) Cancel(token string) {
	r.mu.Lock()
	delete(r.waiters, token)
	r.mu.Unlock()
}

// Pending returns the number of unresolved registrations.
func (r *Registry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.waiters)
}
