package shadow

import "github.com/google/uuid"

// ShadowState is the paired {reported, desired} sub-documents carried by
// snapshot responses, update acknowledgments, and foreign-change events.
// Either sub-document may be nil.
type ShadowState struct {
	Reported Document `json:"reported,omitempty"`
	Desired  Document `json:"desired,omitempty"`
}

// EventKind classifies transport notifications into the four event classes
// the session processes.
type EventKind int

const (
	// EventLifecycle is a connect/disconnect/reconnect/error notification.
	// Observed and logged only; never alters the cached document.
	EventLifecycle EventKind = iota

	// EventResponse carries a correlation token and a ShadowState. It is
	// either the outstanding snapshot's answer or a mutation result.
	EventResponse

	// EventForeignChange is state pushed by any other actor, including the
	// physical device reporting back. Carries no caller-assigned token.
	EventForeignChange

	// EventDiagnostic is a delta or timeout notification, surfaced for
	// observability only.
	EventDiagnostic
)

// LifecycleStatus describes a transport lifecycle transition.
type LifecycleStatus string

const (
	StatusConnected    LifecycleStatus = "connected"
	StatusDisconnected LifecycleStatus = "disconnected"
	StatusReconnecting LifecycleStatus = "reconnecting"
	StatusError        LifecycleStatus = "error"
)

// Event is one notification from the transport, delivered on a single
// ordered stream per attachment.
type Event struct {
	Kind    EventKind
	ThingID string

	// Token is the correlation token for response events; empty for
	// foreign changes.
	Token string

	// Status is set for lifecycle events.
	Status LifecycleStatus

	// State is set for response and foreign-change events.
	State ShadowState

	// Err carries lifecycle errors and remote rejections.
	Err error
}

// Response resolves a pending request waiter in the correlation registry.
type Response struct {
	State ShadowState
	Err   error
}

// Connection is one live transport attachment for shadow traffic. The
// device does not own the connection's lifecycle, only observes it; the
// handle may be swapped over the device's lifetime without invalidating
// pending state.
//
// Correlation tokens are issued by the caller (see NewToken) so a waiter
// can be registered before the request leaves the process.
type Connection interface {
	// Subscribe registers interest in a thing's shadow traffic and returns
	// its ordered event stream. The channel is closed when the attachment
	// is torn down.
	Subscribe(thingID string) (<-chan Event, error)

	// RequestState asks the remote for the current {reported, desired}
	// shadow pair. The answer arrives as an EventResponse bearing token.
	RequestState(thingID, token string) error

	// PublishUpdate sends a desired-state update for the thing. The
	// acknowledgment arrives as an EventResponse bearing token.
	PublishUpdate(thingID, token string, desired Document) error
}

// NewToken returns a fresh correlation token. Tokens only need to be
// unique per device; UUIDs keep them unique across devices too.
func NewToken() string {
	return uuid.NewString()
}

// Logger defines the logging interface used by the shadow engine.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
