package shadow

import (
	"context"
	"time"
)

// Default engine deadlines, overridable via Options.
const (
	defaultUpdateTimeout   = 30 * time.Second
	defaultSnapshotTimeout = 30 * time.Second
)

// Identity describes one shadow-backed device: a stable thing identifier
// plus human-readable name and physical address. Immutable for the
// device's lifetime.
type Identity struct {
	ThingID string `json:"thing_id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Options tune a Device's engine behavior.
type Options struct {
	// UpdateTimeout is the acknowledgment deadline per update submission.
	// Defaults to 30s.
	UpdateTimeout time.Duration

	// SnapshotTimeout bounds the get-shadow handshake triggered by attach
	// and Resync. Defaults to 30s.
	SnapshotTimeout time.Duration

	// Logger receives engine diagnostics. Defaults to a no-op logger.
	Logger Logger
}

// Device is the public facade of the shadow engine for one thing. It
// combines the session, the update serializer, and the broadcast stream of
// the merged document. Device-specific types build on top of its generic
// Update/state API.
type Device struct {
	identity Identity
	logger   Logger

	corr       *Registry
	stream     *Stream
	session    *Session
	serializer *Serializer

	snapshotTimeout time.Duration
}

// NewDevice constructs a device and, when conn is non-nil, performs the
// initial attach and kicks off the snapshot handshake. Subsequent handle
// replacements go through SetConnection.
func NewDevice(identity Identity, conn Connection, opts Options) (*Device, error) {
	if opts.UpdateTimeout <= 0 {
		opts.UpdateTimeout = defaultUpdateTimeout
	}
	if opts.SnapshotTimeout <= 0 {
		opts.SnapshotTimeout = defaultSnapshotTimeout
	}
	if opts.Logger == nil {
		opts.Logger = noopLogger{}
	}

	corr := NewRegistry()
	stream := NewStream()
	session := NewSession(identity.ThingID, corr, stream)
	session.SetLogger(opts.Logger)

	d := &Device{
		identity:        identity,
		logger:          opts.Logger,
		corr:            corr,
		stream:          stream,
		session:         session,
		serializer:      NewSerializer(session, corr, opts.UpdateTimeout, opts.Logger),
		snapshotTimeout: opts.SnapshotTimeout,
	}

	if conn != nil {
		if err := d.attach(conn); err != nil {
			d.serializer.Close()
			return nil, err
		}
	}
	return d, nil
}

// Identity returns the device's immutable identity.
func (d *Device) Identity() Identity {
	return d.identity
}

// SetConnection replaces the transport handle: listeners are re-attached
// and the snapshot handshake re-issued. The initial handle is handled by
// the constructor; every subsequent replacement goes through here.
func (d *Device) SetConnection(conn Connection) error {
	return d.attach(conn)
}

// attach wires the session to the handle and starts a fresh handshake.
func (d *Device) attach(conn Connection) error {
	if err := d.session.Attach(conn); err != nil {
		return err
	}
	d.Resync()
	return nil
}

// Resync re-issues the get-shadow handshake in the background. Callers
// trigger it after a transport reconnect; lifecycle events alone never
// re-issue it.
func (d *Device) Resync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.snapshotTimeout)
		defer cancel()
		if _, err := d.session.RequestSnapshot(ctx); err != nil {
			d.logger.Warn("shadow snapshot failed",
				"thing_id", d.identity.ThingID,
				"error", err,
			)
		}
	}()
}

// Update queues a desired-state change and returns a channel yielding its
// terminal Result (acknowledged, failed, or timed out) exactly once.
// After Close, submissions resolve immediately as failed with ErrClosed.
func (d *Device) Update(change Document) <-chan Result {
	return d.serializer.Submit(change)
}

// CurrentState resolves with the next value observable on the state
// stream: the cached document if a snapshot has already landed, otherwise
// the first one published. Suspends until then or until ctx is done.
func (d *Device) CurrentState(ctx context.Context) (Document, error) {
	return d.stream.First(ctx)
}

// Watch returns a channel yielding the most recent merged document and
// every subsequent version, plus a cancel function that closes the
// channel. The nil pre-snapshot placeholder is never yielded.
func (d *Device) Watch() (<-chan Document, func()) {
	return d.stream.Subscribe()
}

// Close stops the update worker. The device holds no other resources; the
// transport's lifecycle is owned elsewhere.
func (d *Device) Close() {
	d.serializer.Close()
}
