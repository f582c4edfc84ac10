package telemetry

// EventID is the identity of a compiled run event.
// Identity: device id + session start timestamp. Deterministic on purpose:
// replaying the same close is an upsert, never a duplicate row.
type EventID string

// BuildEventID builds the event identity from device and session start.
func BuildEventID(deviceID, startTimestamp string) (EventID, error) {
	if deviceID == "" {
		return "", ErrEmptyDeviceID
	}
	if startTimestamp == "" {
		return "", ErrInvalidTimestamp
	}
	return EventID(deviceID + "|" + startTimestamp), nil
}

// Event is the immutable compiled summary of one closed pump run.
// Appended to the device's event history and never mutated afterward.
type Event struct {
	ID              EventID `json:"id"`
	DeviceID        string  `json:"device_id"`
	Date            string  `json:"date"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationSeconds int64   `json:"duration"`
	AverageValue    float64 `json:"average_value"`
	DischargeVolume float64 `json:"discharge_volume"`
}
