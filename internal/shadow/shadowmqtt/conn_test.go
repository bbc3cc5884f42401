package shadowmqtt

import (
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tmarren/shadow-core/internal/infrastructure/mqtt"
	"github.com/tmarren/shadow-core/internal/shadow"
)

// fakeTransport implements Transport in-memory. Published messages are
// recorded; incoming messages are injected with inject().
type fakeTransport struct {
	mu           sync.Mutex
	connected    bool
	handlers     map[string]mqtt.MessageHandler
	published    []fakePublish
	subscribeErr error
	publishErr   error
	onConnect    func()
	onDisconnect func(err error)
}

type fakePublish struct {
	topic   string
	payload []byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		connected: true,
		handlers:  make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, fakePublish{topic: topic, payload: payload})
	return nil
}

func (f *fakeTransport) SetOnConnect(callback func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = callback
}

func (f *fakeTransport) SetOnDisconnect(callback func(err error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = callback
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// inject delivers a message to the registered handler, as the paho router
// would.
func (f *fakeTransport) inject(t *testing.T, topic string, payload string) {
	t.Helper()
	f.mu.Lock()
	handler, ok := f.handlers[topic]
	f.mu.Unlock()
	if !ok {
		t.Fatalf("no handler registered for %q", topic)
	}
	if err := handler(topic, []byte(payload)); err != nil {
		t.Fatalf("handler(%q) error = %v", topic, err)
	}
}

func (f *fakeTransport) subscribedTopics() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeTransport) lastPublished(t *testing.T) fakePublish {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	return f.published[len(f.published)-1]
}

func recvEvent(t *testing.T, ch <-chan shadow.Event) shadow.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return shadow.Event{}
	}
}

func TestConn_SubscribeAttachesShadowTopics(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{QoS: 1})

	if _, err := conn.Subscribe("tap-kitchen"); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topics := mqtt.Topics{}
	for _, topic := range []string{
		topics.ShadowGetAccepted("tap-kitchen"),
		topics.ShadowGetRejected("tap-kitchen"),
		topics.ShadowUpdateAccepted("tap-kitchen"),
		topics.ShadowUpdateRejected("tap-kitchen"),
		topics.ShadowUpdateDelta("tap-kitchen"),
		topics.ShadowUpdateDocuments("tap-kitchen"),
	} {
		transport.mu.Lock()
		_, ok := transport.handlers[topic]
		transport.mu.Unlock()
		if !ok {
			t.Errorf("topic %q not subscribed", topic)
		}
	}
}

func TestConn_SubscribeFailureRollsBack(t *testing.T) {
	transport := newFakeTransport()
	transport.subscribeErr = errors.New("broker down")
	conn := New(transport, Options{})

	if _, err := conn.Subscribe("tap-kitchen"); err == nil {
		t.Fatal("Subscribe() expected error")
	}
	if n := transport.subscribedTopics(); n != 0 {
		t.Errorf("topics left subscribed after failure = %d, want 0", n)
	}
}

func TestConn_AcceptedResponseBecomesEvent(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := mqtt.Topics{}.ShadowGetAccepted("tap-kitchen")
	transport.inject(t, topic, `{"clientToken":"tok-1","state":{"reported":{"valve":"closed"},"desired":{"valve":"open"}}}`)

	ev := recvEvent(t, events)
	if ev.Kind != shadow.EventResponse {
		t.Errorf("Kind = %v, want EventResponse", ev.Kind)
	}
	if ev.Token != "tok-1" {
		t.Errorf("Token = %q, want tok-1", ev.Token)
	}
	if ev.Err != nil {
		t.Errorf("Err = %v, want nil", ev.Err)
	}
	wantReported := shadow.Document{"valve": shadow.String("closed")}
	if !reflect.DeepEqual(ev.State.Reported, wantReported) {
		t.Errorf("Reported = %v, want %v", ev.State.Reported, wantReported)
	}
	wantDesired := shadow.Document{"valve": shadow.String("open")}
	if !reflect.DeepEqual(ev.State.Desired, wantDesired) {
		t.Errorf("Desired = %v, want %v", ev.State.Desired, wantDesired)
	}
}

func TestConn_UpdateRejectionWrapsSentinel(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := mqtt.Topics{}.ShadowUpdateRejected("tap-kitchen")
	transport.inject(t, topic, `{"clientToken":"tok-2","code":400,"message":"invalid desired state"}`)

	ev := recvEvent(t, events)
	if ev.Kind != shadow.EventResponse {
		t.Errorf("Kind = %v, want EventResponse", ev.Kind)
	}
	if !errors.Is(ev.Err, shadow.ErrUpdateRejected) {
		t.Errorf("Err = %v, want ErrUpdateRejected", ev.Err)
	}
}

func TestConn_DocumentsBecomeForeignChange(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := mqtt.Topics{}.ShadowUpdateDocuments("tap-kitchen")
	transport.inject(t, topic, `{"state":{"reported":{"temp":21.5}}}`)

	ev := recvEvent(t, events)
	if ev.Kind != shadow.EventForeignChange {
		t.Errorf("Kind = %v, want EventForeignChange", ev.Kind)
	}
	if ev.Token != "" {
		t.Errorf("Token = %q, want empty", ev.Token)
	}
	want := shadow.Document{"temp": shadow.Number(21.5)}
	if !reflect.DeepEqual(ev.State.Reported, want) {
		t.Errorf("Reported = %v, want %v", ev.State.Reported, want)
	}
}

func TestConn_DeltaBecomesDiagnostic(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := mqtt.Topics{}.ShadowUpdateDelta("tap-kitchen")
	transport.inject(t, topic, `{"clientToken":"tok-3","state":{"desired":{"valve":"open"}}}`)

	ev := recvEvent(t, events)
	if ev.Kind != shadow.EventDiagnostic {
		t.Errorf("Kind = %v, want EventDiagnostic", ev.Kind)
	}
}

func TestConn_MalformedPayloadDropped(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	topic := mqtt.Topics{}.ShadowGetAccepted("tap-kitchen")
	transport.inject(t, topic, `not json`)

	select {
	case ev := <-events:
		t.Errorf("unexpected event %+v for malformed payload", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConn_RequestStatePublishesTokenEnvelope(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{QoS: 1})

	if err := conn.RequestState("tap-kitchen", "tok-9"); err != nil {
		t.Fatalf("RequestState() error = %v", err)
	}

	pub := transport.lastPublished(t)
	if want := (mqtt.Topics{}).ShadowGet("tap-kitchen"); pub.topic != want {
		t.Errorf("topic = %q, want %q", pub.topic, want)
	}
	var env envelope
	if err := json.Unmarshal(pub.payload, &env); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if env.ClientToken != "tok-9" {
		t.Errorf("clientToken = %q, want tok-9", env.ClientToken)
	}
}

func TestConn_PublishUpdateCarriesDesiredState(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{QoS: 1})

	desired := shadow.Document{"valve": shadow.String("open")}
	if err := conn.PublishUpdate("tap-kitchen", "tok-10", desired); err != nil {
		t.Fatalf("PublishUpdate() error = %v", err)
	}

	pub := transport.lastPublished(t)
	if want := (mqtt.Topics{}).ShadowUpdate("tap-kitchen"); pub.topic != want {
		t.Errorf("topic = %q, want %q", pub.topic, want)
	}
	var env envelope
	if err := json.Unmarshal(pub.payload, &env); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if env.ClientToken != "tok-10" {
		t.Errorf("clientToken = %q, want tok-10", env.ClientToken)
	}
	if got := env.State.Desired["valve"]; got != "open" {
		t.Errorf("desired.valve = %v, want open", got)
	}
}

func TestConn_DisconnectedTransportRefusesRequests(t *testing.T) {
	transport := newFakeTransport()
	transport.connected = false
	conn := New(transport, Options{})

	if err := conn.RequestState("tap-kitchen", "tok"); !errors.Is(err, shadow.ErrNoConnection) {
		t.Errorf("RequestState() error = %v, want ErrNoConnection", err)
	}
	if err := conn.PublishUpdate("tap-kitchen", "tok", nil); !errors.Is(err, shadow.ErrNoConnection) {
		t.Errorf("PublishUpdate() error = %v, want ErrNoConnection", err)
	}
}

func TestConn_LifecycleFansOutToAttachments(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	transport.onDisconnect(errors.New("link lost"))
	ev := recvEvent(t, events)
	if ev.Kind != shadow.EventLifecycle || ev.Status != shadow.StatusDisconnected {
		t.Errorf("event = %+v, want disconnected lifecycle", ev)
	}
	if ev.Err == nil {
		t.Error("disconnect event should carry the error")
	}

	transport.onConnect()
	ev = recvEvent(t, events)
	if ev.Kind != shadow.EventLifecycle || ev.Status != shadow.StatusConnected {
		t.Errorf("event = %+v, want connected lifecycle", ev)
	}
}

func TestConn_ReconnectCallbackSkipsFirstConnect(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	var calls int
	conn.SetOnReconnect(func() { calls++ })

	transport.onConnect()
	if calls != 0 {
		t.Errorf("callback ran on initial connect, calls = %d", calls)
	}

	transport.onDisconnect(errors.New("link lost"))
	transport.onConnect()
	if calls != 1 {
		t.Errorf("calls after reconnect = %d, want 1", calls)
	}
}

func TestConn_CloseEndsStreams(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if _, open := <-events; open {
		t.Error("event stream still open after Close")
	}
	if n := transport.subscribedTopics(); n != 0 {
		t.Errorf("topics still subscribed after Close = %d, want 0", n)
	}
	if _, err := conn.Subscribe("another"); !errors.Is(err, shadow.ErrClosed) {
		t.Errorf("Subscribe() after Close error = %v, want ErrClosed", err)
	}
}

func TestConn_LateHandlerAfterCloseDeliversNothing(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	events, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	// Hold on to the router handler the way an in-flight paho delivery
	// would, then tear the attachment down underneath it.
	topic := mqtt.Topics{}.ShadowGetAccepted("tap-kitchen")
	transport.mu.Lock()
	handler := transport.handlers[topic]
	transport.mu.Unlock()

	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	// Must drop the event rather than send on the closed stream.
	if err := handler(topic, []byte(`{"clientToken":"tok","state":{"reported":{"v":1}}}`)); err != nil {
		t.Fatalf("late handler error = %v", err)
	}
	if _, open := <-events; open {
		t.Error("event delivered on a closed stream")
	}
}

func TestConn_ResubscribeSupersedesOldStream(t *testing.T) {
	transport := newFakeTransport()
	conn := New(transport, Options{})

	old, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	fresh, err := conn.Subscribe("tap-kitchen")
	if err != nil {
		t.Fatalf("re-Subscribe() error = %v", err)
	}

	if _, open := <-old; open {
		t.Error("superseded stream still open")
	}

	topic := mqtt.Topics{}.ShadowUpdateDocuments("tap-kitchen")
	transport.inject(t, topic, `{"state":{"reported":{"v":1}}}`)

	ev := recvEvent(t, fresh)
	if ev.Kind != shadow.EventForeignChange {
		t.Errorf("Kind = %v, want EventForeignChange", ev.Kind)
	}
}
