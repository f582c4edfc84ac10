package memory

import (
	"context"
	"sync"

	telemetry "pumpwatch/internal/telemetry/domain"
)

// SessionStore is an in-memory session store, used by unit tests and
// standalone demo runs. Buffers and histories are copied on the way in and
// out so callers never alias internal state.
type SessionStore struct {
	mu      sync.RWMutex
	buffers map[string][]telemetry.Sample
	events  map[string][]telemetry.Event
}

// NewSessionStore constructs an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		buffers: make(map[string][]telemetry.Sample),
		events:  make(map[string][]telemetry.Event),
	}
}

// LoadBuffer returns a copy of the device's open session buffer.
func (s *SessionStore) LoadBuffer(ctx context.Context, deviceID string) ([]telemetry.Sample, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSamples(s.buffers[deviceID]), nil
}

// SaveBuffer replaces the device's session buffer.
func (s *SessionStore) SaveBuffer(ctx context.Context, deviceID string, buffer []telemetry.Sample) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[deviceID] = cloneSamples(buffer)
	return nil
}

// AppendEvent appends a compiled event; replays of an existing id are no-ops.
func (s *SessionStore) AppendEvent(ctx context.Context, deviceID string, event telemetry.Event) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(deviceID, event)
	return nil
}

// ListEvents returns events in append order. limit <= 0 means all.
func (s *SessionStore) ListEvents(ctx context.Context, deviceID string, limit, offset int) ([]telemetry.Event, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.events[deviceID]
	if offset < 0 {
		offset = 0
	}
	if offset >= len(history) {
		return nil, nil
	}
	history = history[offset:]
	if limit > 0 && limit < len(history) {
		history = history[:limit]
	}
	out := make([]telemetry.Event, len(history))
	copy(out, history)
	return out, nil
}

// CloseSession atomically appends event and replaces the buffer.
func (s *SessionStore) CloseSession(ctx context.Context, deviceID string, event telemetry.Event, buffer []telemetry.Sample) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(deviceID, event)
	s.buffers[deviceID] = cloneSamples(buffer)
	return nil
}

func (s *SessionStore) appendLocked(deviceID string, event telemetry.Event) {
	for _, existing := range s.events[deviceID] {
		if existing.ID == event.ID {
			return
		}
	}
	s.events[deviceID] = append(s.events[deviceID], event)
}

func cloneSamples(in []telemetry.Sample) []telemetry.Sample {
	if len(in) == 0 {
		return nil
	}
	out := make([]telemetry.Sample, len(in))
	copy(out, in)
	return out
}

// Registry is a static in-memory device registry.
type Registry struct {
	mu  sync.RWMutex
	ids map[string]struct{}
	// order preserves registration order for List, because the dashboard
	// defaults to the first registered device.
	order []string
}

// NewRegistry constructs a registry from a list of device ids.
func NewRegistry(deviceIDs []string) *Registry {
	r := &Registry{ids: make(map[string]struct{})}
	for _, id := range deviceIDs {
		r.add(id)
	}
	return r
}

// Add registers a device id.
func (r *Registry) Add(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(deviceID)
}

func (r *Registry) add(deviceID string) {
	if deviceID == "" {
		return
	}
	if _, ok := r.ids[deviceID]; ok {
		return
	}
	r.ids[deviceID] = struct{}{}
	r.order = append(r.order, deviceID)
}

// IsRegistered reports membership.
func (r *Registry) IsRegistered(ctx context.Context, deviceID string) (bool, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ids[deviceID]
	return ok, nil
}

// List returns device ids in registration order.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out, nil
}
