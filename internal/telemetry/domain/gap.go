package telemetry

import "time"

// GapSeconds returns the elapsed seconds between the last buffered sample
// and a reference instant. Ingestion passes the incoming sample's instant
// (deterministic and replay-safe); status checks pass wall-clock now.
// Both callers must share this one computation or online/offline and
// session-close decisions diverge.
func GapSeconds(last Sample, ref time.Time) (float64, error) {
	instant, err := last.Instant()
	if err != nil {
		return 0, err
	}
	return ref.Sub(instant).Seconds(), nil
}

// GapExceeded reports whether the gap to ref is strictly greater than timeout.
// An unparseable stored zone fails closed: the error is returned and the
// caller decides policy instead of guessing a zone.
func GapExceeded(last Sample, ref time.Time, timeout time.Duration) (bool, float64, error) {
	gap, err := GapSeconds(last, ref)
	if err != nil {
		return false, 0, err
	}
	return gap > timeout.Seconds(), gap, nil
}
