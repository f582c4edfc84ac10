package application

import "sync"

// DeviceLocks hands out one mutex per device id. Session state is
// partitioned per device, so two devices never contend; within one device
// the buffer read-modify-write must be serialized, including a ping racing
// a dashboard view. Ingest and status services must share one instance.
type DeviceLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDeviceLocks constructs an empty lock registry.
func NewDeviceLocks() *DeviceLocks {
	return &DeviceLocks{locks: make(map[string]*sync.Mutex)}
}

// ForDevice returns the mutex guarding one device's session state.
func (l *DeviceLocks) ForDevice(deviceID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[deviceID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[deviceID] = lock
	}
	return lock
}
