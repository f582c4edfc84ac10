package telemetry

import (
	"math"
	"time"
)

// Compile turns a closed session buffer into an Event. Pure: no I/O, and
// the same buffer always compiles to the same Event.
//
// The buffer must be non-empty. Callers enforce the >= 2 sample policy
// (a lone stale sample is discarded, not compiled); the compiler trusts
// its input and only rejects what it cannot compute.
func Compile(deviceID string, buffer []Sample, dischargeCoefficient float64) (Event, error) {
	if deviceID == "" {
		return Event{}, ErrEmptyDeviceID
	}
	if len(buffer) == 0 {
		return Event{}, ErrEmptyBuffer
	}

	first := buffer[0]
	last := buffer[len(buffer)-1]

	start, err := first.Instant()
	if err != nil {
		return Event{}, err
	}
	end, err := last.Instant()
	if err != nil {
		return Event{}, err
	}
	duration := int64(end.Sub(start) / time.Second)
	if duration < 0 {
		return Event{}, ErrNegativeDuration
	}

	var sum float64
	for _, sample := range buffer {
		sum += sample.Value
	}
	average := Round2(sum / float64(len(buffer)))
	discharge := Round2(float64(duration) * dischargeCoefficient)

	id, err := BuildEventID(deviceID, first.Timestamp)
	if err != nil {
		return Event{}, err
	}

	return Event{
		ID:              id,
		DeviceID:        deviceID,
		Date:            first.Date,
		StartTime:       first.Timestamp,
		EndTime:         last.Timestamp,
		DurationSeconds: duration,
		AverageValue:    average,
		DischargeVolume: discharge,
	}, nil
}

// Round2 rounds to two decimal places, the precision the event log reports.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
