package shadowmqtt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tmarren/shadow-core/internal/infrastructure/mqtt"
	"github.com/tmarren/shadow-core/internal/shadow"
)

// defaultEventBuffer is the per-thing event channel capacity used when the
// configured value is not positive.
const defaultEventBuffer = 64

// Transport is the subset of the MQTT client the adapter needs. Satisfied
// by *mqtt.Client; tests substitute a fake.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	SetOnConnect(callback func())
	SetOnDisconnect(callback func(err error))
	IsConnected() bool
}

// Options configures a Conn.
type Options struct {
	// QoS is the quality-of-service level for shadow traffic.
	QoS byte

	// EventBuffer is the per-thing event channel capacity. Events are
	// dropped (with a warning) when a session falls this far behind.
	EventBuffer int

	// Logger receives adapter warnings. Optional.
	Logger shadow.Logger
}

// Conn bridges MQTT shadow topics to shadow.Connection event streams.
//
// Each subscribed thing gets one buffered event channel fed by the paho
// router in arrival order. Lifecycle transitions of the underlying
// transport fan out to every attached stream.
type Conn struct {
	transport Transport
	qos       byte
	buffer    int
	logger    shadow.Logger
	topics    mqtt.Topics

	mu          sync.Mutex
	attachments map[string]*attachment
	closed      bool
	sawConnect  bool
	onReconnect func()
}

// attachment is one thing's live subscription set.
type attachment struct {
	events chan shadow.Event
	topics []string
}

// envelope is the JSON wire format for shadow messages.
type envelope struct {
	ClientToken string        `json:"clientToken,omitempty"`
	State       envelopeState `json:"state,omitempty"`
	Code        int           `json:"code,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// envelopeState carries the {reported, desired} sub-document pair.
type envelopeState struct {
	Reported map[string]any `json:"reported,omitempty"`
	Desired  map[string]any `json:"desired,omitempty"`
}

// New creates a Conn over the given transport and registers lifecycle
// handlers on it.
func New(transport Transport, opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	c := &Conn{
		transport:   transport,
		qos:         opts.QoS,
		buffer:      buffer,
		logger:      logger,
		attachments: make(map[string]*attachment),
	}

	transport.SetOnConnect(c.handleConnect)
	transport.SetOnDisconnect(c.handleDisconnect)

	return c
}

// SetOnReconnect sets a callback invoked when the transport reconnects
// after a loss. The initial connect does not trigger it. Use this to
// resynchronize device shadows whose responses may have been missed.
func (c *Conn) SetOnReconnect(callback func()) {
	c.mu.Lock()
	c.onReconnect = callback
	c.mu.Unlock()
}

// Subscribe attaches a thing's shadow topics and returns its ordered event
// stream. The channel is closed by Close or by a repeat Subscribe for the
// same thing (which supersedes the earlier attachment).
func (c *Conn) Subscribe(thingID string) (<-chan shadow.Event, error) {
	if thingID == "" {
		return nil, fmt.Errorf("shadowmqtt: thing id cannot be empty")
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, shadow.ErrClosed
	}
	if prev, ok := c.attachments[thingID]; ok {
		delete(c.attachments, thingID)
		close(prev.events)
	}
	c.mu.Unlock()

	att := &attachment{
		events: make(chan shadow.Event, c.buffer),
	}

	routes := []struct {
		topic   string
		handler mqtt.MessageHandler
	}{
		{c.topics.ShadowGetAccepted(thingID), c.responseHandler(thingID, att, acceptedResponse)},
		{c.topics.ShadowGetRejected(thingID), c.responseHandler(thingID, att, snapshotRejection)},
		{c.topics.ShadowUpdateAccepted(thingID), c.responseHandler(thingID, att, acceptedResponse)},
		{c.topics.ShadowUpdateRejected(thingID), c.responseHandler(thingID, att, updateRejection)},
		{c.topics.ShadowUpdateDelta(thingID), c.diagnosticHandler(thingID, att)},
		{c.topics.ShadowUpdateDocuments(thingID), c.foreignChangeHandler(thingID, att)},
	}

	for i, route := range routes {
		if err := c.transport.Subscribe(route.topic, c.qos, route.handler); err != nil {
			for _, done := range routes[:i] {
				c.transport.Unsubscribe(done.topic)
			}
			close(att.events)
			return nil, fmt.Errorf("subscribing %s: %w", route.topic, err)
		}
		att.topics = append(att.topics, route.topic)
	}

	c.mu.Lock()
	c.attachments[thingID] = att
	c.mu.Unlock()

	return att.events, nil
}

// RequestState publishes a get-shadow request bearing the caller's
// correlation token.
func (c *Conn) RequestState(thingID, token string) error {
	if !c.transport.IsConnected() {
		return shadow.ErrNoConnection
	}

	payload, err := json.Marshal(envelope{ClientToken: token})
	if err != nil {
		return fmt.Errorf("encoding get request: %w", err)
	}
	if err := c.transport.Publish(c.topics.ShadowGet(thingID), payload, c.qos, false); err != nil {
		return fmt.Errorf("publishing get request: %w", err)
	}
	return nil
}

// PublishUpdate publishes a desired-state update bearing the caller's
// correlation token.
func (c *Conn) PublishUpdate(thingID, token string, desired shadow.Document) error {
	if !c.transport.IsConnected() {
		return shadow.ErrNoConnection
	}

	payload, err := json.Marshal(envelope{
		ClientToken: token,
		State:       envelopeState{Desired: desired.Any()},
	})
	if err != nil {
		return fmt.Errorf("encoding update: %w", err)
	}
	if err := c.transport.Publish(c.topics.ShadowUpdate(thingID), payload, c.qos, false); err != nil {
		return fmt.Errorf("publishing update: %w", err)
	}
	return nil
}

// Close unsubscribes every attached thing and closes its event stream,
// ending the consuming session loops. The underlying transport stays open;
// its owner closes it.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	attachments := c.attachments
	c.attachments = make(map[string]*attachment)
	c.mu.Unlock()

	for _, att := range attachments {
		for _, topic := range att.topics {
			c.transport.Unsubscribe(topic)
		}
		close(att.events)
	}
	return nil
}

// rejectionKind distinguishes the error wrapping for rejected responses.
type rejectionKind int

const (
	acceptedResponse rejectionKind = iota
	snapshotRejection
	updateRejection
)

// responseHandler builds a handler converting accepted/rejected payloads
// into EventResponse. rejection selects error wrapping for rejected
// topics; acceptedResponse means the topic carries acceptances.
func (c *Conn) responseHandler(thingID string, att *attachment, rejection rejectionKind) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		env, err := decodeEnvelope(payload)
		if err != nil {
			c.logger.Warn("malformed shadow response dropped",
				"thing_id", thingID,
				"topic", topic,
				"error", err,
			)
			return nil
		}

		ev := shadow.Event{
			Kind:    shadow.EventResponse,
			ThingID: thingID,
			Token:   env.ClientToken,
		}
		switch rejection {
		case snapshotRejection:
			ev.Err = fmt.Errorf("shadow get rejected: %s (code %d)", env.Message, env.Code)
		case updateRejection:
			ev.Err = fmt.Errorf("%w: %s (code %d)", shadow.ErrUpdateRejected, env.Message, env.Code)
		default:
			state, err := stateFromEnvelope(env)
			if err != nil {
				c.logger.Warn("malformed shadow state dropped",
					"thing_id", thingID,
					"topic", topic,
					"error", err,
				)
				return nil
			}
			ev.State = state
		}

		c.deliver(thingID, att, ev)
		return nil
	}
}

// foreignChangeHandler converts full-document publications into
// EventForeignChange. Locally triggered documents arrive here too; the
// merge model absorbs the re-application.
func (c *Conn) foreignChangeHandler(thingID string, att *attachment) mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		env, err := decodeEnvelope(payload)
		if err != nil {
			c.logger.Warn("malformed shadow document dropped",
				"thing_id", thingID,
				"topic", topic,
				"error", err,
			)
			return nil
		}
		state, err := stateFromEnvelope(env)
		if err != nil {
			c.logger.Warn("malformed shadow state dropped",
				"thing_id", thingID,
				"topic", topic,
				"error", err,
			)
			return nil
		}

		c.deliver(thingID, att, shadow.Event{
			Kind:    shadow.EventForeignChange,
			ThingID: thingID,
			State:   state,
		})
		return nil
	}
}

// diagnosticHandler converts delta notifications into EventDiagnostic.
func (c *Conn) diagnosticHandler(thingID string, att *attachment) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		env, err := decodeEnvelope(payload)
		if err != nil {
			return nil
		}
		c.deliver(thingID, att, shadow.Event{
			Kind:    shadow.EventDiagnostic,
			ThingID: thingID,
			Token:   env.ClientToken,
		})
		return nil
	}
}

// handleConnect fans a connected lifecycle event out to every attachment
// and, on reconnects, invokes the owner's resync callback.
func (c *Conn) handleConnect() {
	c.mu.Lock()
	reconnect := c.sawConnect
	c.sawConnect = true
	callback := c.onReconnect
	attachments := c.snapshotAttachmentsLocked()
	c.mu.Unlock()

	for thingID, att := range attachments {
		c.deliver(thingID, att, shadow.Event{
			Kind:    shadow.EventLifecycle,
			ThingID: thingID,
			Status:  shadow.StatusConnected,
		})
	}

	if reconnect && callback != nil {
		callback()
	}
}

// handleDisconnect fans a disconnected lifecycle event out to every
// attachment.
func (c *Conn) handleDisconnect(err error) {
	c.mu.Lock()
	attachments := c.snapshotAttachmentsLocked()
	c.mu.Unlock()

	for thingID, att := range attachments {
		c.deliver(thingID, att, shadow.Event{
			Kind:    shadow.EventLifecycle,
			ThingID: thingID,
			Status:  shadow.StatusDisconnected,
			Err:     err,
		})
	}
}

func (c *Conn) snapshotAttachmentsLocked() map[string]*attachment {
	out := make(map[string]*attachment, len(c.attachments))
	for id, att := range c.attachments {
		out[id] = att
	}
	return out
}

// deliver sends an event without blocking the paho router. A full channel
// means the session has stalled; the event is dropped with a warning and
// the next resync recovers the state.
//
// The lock is held across the send: an attachment's channel is only ever
// closed after the attachment has been removed from the map under this
// lock, so a handler that still finds the attachment mapped cannot race a
// close. The send is non-blocking, so holding the lock is cheap.
func (c *Conn) deliver(thingID string, att *attachment, ev shadow.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, live := c.attachments[thingID]
	if !live || current != att {
		// Superseded attachment; its channel is closed.
		return
	}

	select {
	case att.events <- ev:
	default:
		c.logger.Warn("shadow event dropped, stream full",
			"thing_id", thingID,
			"kind", ev.Kind,
		)
	}
}

// decodeEnvelope parses a shadow JSON envelope.
func decodeEnvelope(payload []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	return env, nil
}

// stateFromEnvelope converts the envelope's raw state maps into typed
// documents.
func stateFromEnvelope(env envelope) (shadow.ShadowState, error) {
	var state shadow.ShadowState
	if env.State.Reported != nil {
		doc, err := shadow.FromAny(env.State.Reported)
		if err != nil {
			return shadow.ShadowState{}, fmt.Errorf("reported: %w", err)
		}
		state.Reported = doc
	}
	if env.State.Desired != nil {
		doc, err := shadow.FromAny(env.State.Desired)
		if err != nil {
			return shadow.ShadowState{}, fmt.Errorf("desired: %w", err)
		}
		state.Desired = doc
	}
	return state, nil
}

// noopLogger discards everything.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
