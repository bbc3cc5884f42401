package shadow

import (
	"errors"
	"reflect"
	"testing"
	"time"
)

func newTestSerializer(t *testing.T, timeout time.Duration) (*Serializer, *Session, *Registry, *fakeConn) {
	t.Helper()
	corr := NewRegistry()
	stream := NewStream()
	session := NewSession(testThing, corr, stream)
	conn := newFakeConn()
	if err := session.Attach(conn); err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	s := NewSerializer(session, corr, timeout, nil)
	t.Cleanup(s.Close)
	return s, session, corr, conn
}

func ackUpdate(t *testing.T, conn *fakeConn, i int, state ShadowState) {
	t.Helper()
	up := conn.update(i)
	conn.emit(Event{
		Kind:    EventResponse,
		ThingID: up.thingID,
		Token:   up.token,
		State:   state,
	})
}

func TestSerializer_NoConnectionFailsImmediately(t *testing.T) {
	corr := NewRegistry()
	session := NewSession(testThing, corr, NewStream())
	s := NewSerializer(session, corr, 30*time.Second, nil)
	defer s.Close()

	start := time.Now()
	select {
	case res := <-s.Submit(mustDoc(t, map[string]any{"v": 10})):
		if res.Status != StatusFailed {
			t.Errorf("Status = %v, want StatusFailed", res.Status)
		}
		if !errors.Is(res.Err, ErrNoConnection) {
			t.Errorf("Err = %v, want ErrNoConnection", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("submission with no connection did not resolve")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("failure took %v, want immediate resolution", elapsed)
	}
}

func TestSerializer_SubmitAfterCloseFails(t *testing.T) {
	s, _, _, _ := newTestSerializer(t, time.Second)
	s.Close()
	s.Close() // Idempotent.

	select {
	case res := <-s.Submit(mustDoc(t, map[string]any{"v": 1})):
		if res.Status != StatusFailed {
			t.Errorf("Status = %v, want StatusFailed", res.Status)
		}
		if !errors.Is(res.Err, ErrClosed) {
			t.Errorf("Err = %v, want ErrClosed", res.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("submission after Close did not resolve")
	}
}

func TestSerializer_AcknowledgedUpdate(t *testing.T) {
	s, session, _, conn := newTestSerializer(t, time.Second)

	runSnapshot(t, session, conn, ShadowState{
		Reported: mustDoc(t, map[string]any{"v": 1}),
	})

	change := mustDoc(t, map[string]any{"v": 10})
	resultCh := s.Submit(change)

	waitFor(t, time.Second, "update to be published", func() bool {
		return conn.updateCount() == 1
	})
	up := conn.update(0)
	if up.thingID != testThing {
		t.Errorf("update thingID = %q, want %q", up.thingID, testThing)
	}
	if !reflect.DeepEqual(up.desired, change) {
		t.Errorf("update desired = %v, want %v", up.desired, change)
	}

	ackUpdate(t, conn, 0, ShadowState{Desired: change})

	res := <-resultCh
	if res.Status != StatusAcknowledged {
		t.Fatalf("Status = %v (err=%v), want StatusAcknowledged", res.Status, res.Err)
	}

	// The ack is also applied to the cached document.
	want := mustDoc(t, map[string]any{"v": 10})
	waitFor(t, time.Second, "ack to reach the cache", func() bool {
		return reflect.DeepEqual(session.Cached(), want)
	})
}

func TestSerializer_RejectedUpdateFails(t *testing.T) {
	s, _, _, conn := newTestSerializer(t, time.Second)

	resultCh := s.Submit(mustDoc(t, map[string]any{"v": 1}))
	waitFor(t, time.Second, "update to be published", func() bool {
		return conn.updateCount() == 1
	})

	up := conn.update(0)
	conn.emit(Event{
		Kind:    EventResponse,
		ThingID: testThing,
		Token:   up.token,
		Err:     ErrUpdateRejected,
	})

	res := <-resultCh
	if res.Status != StatusFailed {
		t.Errorf("Status = %v, want StatusFailed", res.Status)
	}
	if !errors.Is(res.Err, ErrUpdateRejected) {
		t.Errorf("Err = %v, want ErrUpdateRejected", res.Err)
	}
}

func TestSerializer_TimeoutDoesNotBlockNextSubmission(t *testing.T) {
	s, _, corr, conn := newTestSerializer(t, 50*time.Millisecond)

	first := s.Submit(mustDoc(t, map[string]any{"v": 1}))
	second := s.Submit(mustDoc(t, map[string]any{"v": 2}))

	waitFor(t, time.Second, "first update to be published", func() bool {
		return conn.updateCount() >= 1
	})
	// The second request must wait behind the first's terminal outcome.
	if got := conn.updateCount(); got != 1 {
		t.Fatalf("updateCount = %d before first outcome, want 1", got)
	}

	res := <-first
	if res.Status != StatusTimedOut {
		t.Fatalf("first Status = %v, want StatusTimedOut", res.Status)
	}
	if !errors.Is(res.Err, ErrUpdateTimeout) {
		t.Errorf("first Err = %v, want ErrUpdateTimeout", res.Err)
	}

	// Only now is the second request sent.
	waitFor(t, time.Second, "second update to be published", func() bool {
		return conn.updateCount() == 2
	})

	ackUpdate(t, conn, 1, ShadowState{})
	if res := <-second; res.Status != StatusAcknowledged {
		t.Errorf("second Status = %v, want StatusAcknowledged", res.Status)
	}

	// The timed-out waiter was removed; its late response is a no-op.
	if corr.Deliver(conn.update(0).token, Response{}) {
		t.Error("late response matched a waiter, want drop")
	}
}

func TestSerializer_SubmissionsReachTransportInCallOrder(t *testing.T) {
	s, _, _, conn := newTestSerializer(t, time.Second)

	var results []<-chan Result
	for i := 1; i <= 4; i++ {
		results = append(results, s.Submit(mustDoc(t, map[string]any{"seq": i})))
	}

	for i := range results {
		waitFor(t, time.Second, "update to be published", func() bool {
			return conn.updateCount() == i+1
		})
		// Never two outstanding at once.
		if got := conn.updateCount(); got != i+1 {
			t.Fatalf("updateCount = %d, want %d", got, i+1)
		}
		ackUpdate(t, conn, i, ShadowState{})
		if res := <-results[i]; res.Status != StatusAcknowledged {
			t.Fatalf("submission %d Status = %v, want StatusAcknowledged", i, res.Status)
		}
	}

	for i := 0; i < 4; i++ {
		want := mustDoc(t, map[string]any{"seq": i + 1})
		if got := conn.update(i).desired; !reflect.DeepEqual(got, want) {
			t.Errorf("transport order: update %d = %v, want %v", i, got, want)
		}
	}
}

func TestSerializer_TransportFailureDoesNotPoisonChain(t *testing.T) {
	s, _, _, conn := newTestSerializer(t, time.Second)
	conn.publishErr = errors.New("broker unavailable")

	first := s.Submit(mustDoc(t, map[string]any{"v": 1}))
	res := <-first
	if res.Status != StatusFailed {
		t.Fatalf("Status = %v, want StatusFailed", res.Status)
	}

	conn.mu.Lock()
	conn.publishErr = nil
	conn.mu.Unlock()

	second := s.Submit(mustDoc(t, map[string]any{"v": 2}))
	waitFor(t, time.Second, "second update to be published", func() bool {
		return conn.updateCount() == 1
	})
	ackUpdate(t, conn, 0, ShadowState{})
	if res := <-second; res.Status != StatusAcknowledged {
		t.Errorf("second Status = %v, want StatusAcknowledged", res.Status)
	}
}

func TestSerializer_ForeignChangeWhilePendingStillCorrelates(t *testing.T) {
	s, session, _, conn := newTestSerializer(t, time.Second)

	runSnapshot(t, session, conn, ShadowState{
		Reported: mustDoc(t, map[string]any{"a": 1, "b": map[string]any{"c": 2}}),
	})

	resultCh := s.Submit(mustDoc(t, map[string]any{"a": 5}))
	waitFor(t, time.Second, "update to be published", func() bool {
		return conn.updateCount() == 1
	})

	// A foreign change lands while the mutation is still awaiting its ack.
	conn.emit(Event{
		Kind:    EventForeignChange,
		ThingID: testThing,
		State:   ShadowState{Reported: mustDoc(t, map[string]any{"b": map[string]any{"c": 3}})},
	})

	interim := mustDoc(t, map[string]any{"a": 1, "b": map[string]any{"c": 3}})
	waitFor(t, time.Second, "foreign change to publish while pending", func() bool {
		return reflect.DeepEqual(session.Cached(), interim)
	})

	// The mutation's own eventual ack is still correlated by token.
	ackUpdate(t, conn, 0, ShadowState{Desired: mustDoc(t, map[string]any{"a": 5})})
	if res := <-resultCh; res.Status != StatusAcknowledged {
		t.Fatalf("Status = %v, want StatusAcknowledged", res.Status)
	}

	final := mustDoc(t, map[string]any{"a": 5, "b": map[string]any{"c": 3}})
	waitFor(t, time.Second, "ack to merge over foreign change", func() bool {
		return reflect.DeepEqual(session.Cached(), final)
	})
}
