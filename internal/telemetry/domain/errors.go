package telemetry

import "errors"

var (
	// ErrEmptyDeviceID is returned when a device id is empty.
	ErrEmptyDeviceID = errors.New("telemetry: empty device id")
	// ErrDeviceNotRegistered is returned when a device id is not in the registry.
	ErrDeviceNotRegistered = errors.New("telemetry: device not registered")
	// ErrInvalidTimestamp is returned when a timestamp fails the civil-format parse.
	ErrInvalidTimestamp = errors.New("telemetry: invalid timestamp")
	// ErrInvalidTimezone is returned when a zone name cannot be loaded.
	// Never silently defaulted: a substituted zone corrupts gap computation.
	ErrInvalidTimezone = errors.New("telemetry: invalid timezone")
	// ErrInvalidValue is returned when a current reading is negative or not a number.
	ErrInvalidValue = errors.New("telemetry: invalid value")
	// ErrEmptyBuffer is returned when compiling an empty session buffer.
	ErrEmptyBuffer = errors.New("telemetry: empty session buffer")
	// ErrNegativeDuration is returned when a buffer's last sample precedes its first.
	ErrNegativeDuration = errors.New("telemetry: negative session duration")
	// ErrStorage wraps session store read/write failures.
	ErrStorage = errors.New("telemetry: storage error")
)
