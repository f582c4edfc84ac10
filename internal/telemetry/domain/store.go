package telemetry

import "context"

// SessionStore persists, per device, the open session buffer (ordered,
// arrival order) and the append-only event history. The two lists are
// independently loadable; CloseSession is the one atomic unit combining
// an event append with a buffer rewrite, so a storage failure can never
// leave the event persisted without the buffer cleared or vice versa.
type SessionStore interface {
	// LoadBuffer returns the device's open session buffer, empty if none.
	LoadBuffer(ctx context.Context, deviceID string) ([]Sample, error)
	// SaveBuffer replaces the device's session buffer.
	SaveBuffer(ctx context.Context, deviceID string, buffer []Sample) error
	// AppendEvent appends a compiled event to the device's history.
	// Appending an event with an already-present id is a no-op.
	AppendEvent(ctx context.Context, deviceID string, event Event) error
	// ListEvents returns events in append order. limit <= 0 means all.
	ListEvents(ctx context.Context, deviceID string, limit, offset int) ([]Event, error)
	// CloseSession atomically appends event and replaces the buffer.
	CloseSession(ctx context.Context, deviceID string, event Event, buffer []Sample) error
}

// DeviceRegistry is the set of known device identifiers. A ping from an
// unknown id is rejected before any session state is read.
type DeviceRegistry interface {
	IsRegistered(ctx context.Context, deviceID string) (bool, error)
	List(ctx context.Context) ([]string, error)
}
