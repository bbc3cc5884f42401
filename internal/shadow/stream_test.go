package shadow

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestStream_FirstSuspendsUntilPublish(t *testing.T) {
	s := NewStream()

	type result struct {
		doc Document
		err error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		doc, err := s.First(ctx)
		done <- result{doc, err}
	}()

	// Not resolved before anything is published.
	select {
	case <-done:
		t.Fatal("First() resolved before any publish")
	case <-time.After(20 * time.Millisecond):
	}

	want := Document{"x": Number(7)}
	s.Publish(want)

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("First() error = %v", res.err)
		}
		if !reflect.DeepEqual(res.doc, want) {
			t.Errorf("First() = %v, want %v", res.doc, want)
		}
	case <-time.After(time.Second):
		t.Fatal("First() did not resolve after publish")
	}
}

func TestStream_FirstReturnsCurrentImmediately(t *testing.T) {
	s := NewStream()
	want := Document{"a": Number(1)}
	s.Publish(want)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := s.First(ctx)
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("First() = %v, want %v", got, want)
	}
}

func TestStream_FirstHonoursContext(t *testing.T) {
	s := NewStream()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := s.First(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("First() error = %v, want deadline exceeded", err)
	}
}

func TestStream_SubscriberConflatesToLatest(t *testing.T) {
	s := NewStream()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Publish(Document{"v": Number(1)})
	s.Publish(Document{"v": Number(2)})
	s.Publish(Document{"v": Number(3)})

	got := <-ch
	if !reflect.DeepEqual(got, Document{"v": Number(3)}) {
		t.Errorf("subscriber saw %v, want latest version", got)
	}
}

func TestStream_NilPublishIgnored(t *testing.T) {
	s := NewStream()
	s.Publish(Document{"v": Number(1)})
	s.Publish(nil)

	got, ok := s.Current()
	if !ok {
		t.Fatal("Current() lost its value after nil publish")
	}
	if !reflect.DeepEqual(got, Document{"v": Number(1)}) {
		t.Errorf("Current() = %v, want previous value preserved", got)
	}
}

func TestStream_CancelClosesChannel(t *testing.T) {
	s := NewStream()
	ch, cancel := s.Subscribe()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	cancel()
	cancel() // Idempotent.

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("range over watch channel did not end after cancel")
	}

	// A publish after cancel must not panic or resurrect the subscriber.
	s.Publish(Document{"v": Number(1)})
}

func TestStream_CancelStopsDelivery(t *testing.T) {
	s := NewStream()
	ch, cancel := s.Subscribe()
	cancel()

	s.Publish(Document{"v": Number(1)})

	select {
	case doc, ok := <-ch:
		if ok {
			t.Errorf("cancelled subscriber received %v", doc)
		}
	default:
	}
}
