// Package thing manages the registry of shadow-backed devices.
//
// A Thing is the durable identity of one device: its ID (which names its
// shadow topics), a display name, and a transport address. The registry is
// seeded from configuration at startup and persisted in SQLite so that API
// consumers can enumerate devices without parsing config.
//
// Shadow state is deliberately absent from this package; it lives in the
// shadow engine's in-memory cache and is resynchronized from the transport
// on demand.
package thing
