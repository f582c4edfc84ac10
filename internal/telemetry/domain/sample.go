package telemetry

import (
	"fmt"
	"math"
	"time"
)

// CivilLayout is the fixed wire format the pump controllers report in.
// It carries no zone offset; a sample is only meaningful together with
// its IANA timezone name.
const CivilLayout = "2006-01-02 15:04:05"

// Sample is one telemetry ping: an instantaneous current reading taken
// by a pump controller's RTC.
type Sample struct {
	Timestamp string  `json:"timestamp"`
	Date      string  `json:"date"`
	Value     float64 `json:"value"`
	Timezone  string  `json:"timezone"`
}

// NewSample validates the civil timestamp, zone and value and derives
// the date component. Nothing is mutated anywhere on failure.
func NewSample(timestamp, timezone string, value float64) (Sample, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return Sample{}, fmt.Errorf("%w: %v", ErrInvalidValue, value)
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return Sample{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, timezone)
	}
	if _, err := time.ParseInLocation(CivilLayout, timestamp, loc); err != nil {
		return Sample{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, timestamp)
	}
	return Sample{
		Timestamp: timestamp,
		Date:      timestamp[:10],
		Value:     value,
		Timezone:  timezone,
	}, nil
}

// Instant resolves the civil timestamp/zone pair to an absolute instant.
func (s Sample) Instant() (time.Time, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimezone, s.Timezone)
	}
	instant, err := time.ParseInLocation(CivilLayout, s.Timestamp, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s.Timestamp)
	}
	return instant, nil
}
