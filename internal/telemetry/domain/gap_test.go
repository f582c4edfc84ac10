package telemetry

import (
	"errors"
	"testing"
	"time"
)

func mustSample(t *testing.T, timestamp, timezone string, value float64) Sample {
	t.Helper()
	sample, err := NewSample(timestamp, timezone, value)
	if err != nil {
		t.Fatalf("new sample: %v", err)
	}
	return sample
}

func TestGapSeconds(t *testing.T) {
	last := mustSample(t, "2026-04-11 10:00:00", "UTC", 2)
	ref := time.Date(2026, time.April, 11, 10, 0, 45, 0, time.UTC)

	gap, err := GapSeconds(last, ref)
	if err != nil {
		t.Fatalf("gap: %v", err)
	}
	if gap != 45 {
		t.Fatalf("expected gap 45, got %v", gap)
	}
}

func TestGapExceeded_StrictlyGreaterThanTimeout(t *testing.T) {
	last := mustSample(t, "2026-04-11 10:00:00", "UTC", 2)
	timeout := 60 * time.Second

	atBoundary := time.Date(2026, time.April, 11, 10, 1, 0, 0, time.UTC)
	exceeded, gap, err := GapExceeded(last, atBoundary, timeout)
	if err != nil {
		t.Fatalf("gap exceeded: %v", err)
	}
	if exceeded {
		t.Fatalf("gap of exactly %v seconds must not exceed the timeout", gap)
	}

	pastBoundary := atBoundary.Add(time.Second)
	exceeded, gap, err = GapExceeded(last, pastBoundary, timeout)
	if err != nil {
		t.Fatalf("gap exceeded: %v", err)
	}
	if !exceeded || gap != 61 {
		t.Fatalf("expected exceeded with gap 61, got exceeded=%v gap=%v", exceeded, gap)
	}
}

func TestGapExceeded_SameZoneForBothInstants(t *testing.T) {
	// Ingest and status checks must agree: the stored sample's own zone
	// resolves it to an absolute instant regardless of the caller's zone.
	last := mustSample(t, "2026-04-11 15:30:00", "Asia/Kolkata", 2)
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	now := time.Date(2026, time.April, 11, 15, 30, 30, 0, loc)

	exceeded, gap, err := GapExceeded(last, now, 60*time.Second)
	if err != nil {
		t.Fatalf("gap exceeded: %v", err)
	}
	if exceeded || gap != 30 {
		t.Fatalf("expected online with gap 30, got exceeded=%v gap=%v", exceeded, gap)
	}
}

func TestGapExceeded_InvalidStoredZone(t *testing.T) {
	last := Sample{Timestamp: "2026-04-11 10:00:00", Date: "2026-04-11", Timezone: "Bad/Zone"}
	_, _, err := GapExceeded(last, time.Now(), 60*time.Second)
	if !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("expected ErrInvalidTimezone, got %v", err)
	}
}
