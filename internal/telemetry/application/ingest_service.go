package application

import (
	"context"
	"errors"
	"fmt"
	"log"

	"pumpwatch/internal/observability/metrics"
	telemetry "pumpwatch/internal/telemetry/domain"
)

// Session statuses reported to the ingest caller.
const (
	StatusNewSession        = "new session"
	StatusContinuingSession = "continuing session"
)

// IngestResult reports what one accepted ping did to the device's session.
type IngestResult struct {
	Status string
	// ClosedEvent is set when this ping's gap closed the previous session.
	ClosedEvent *telemetry.Event
	// DiscardedLoneSample is set when the previous buffer held a single
	// stale sample that was dropped without compiling.
	DiscardedLoneSample bool
	// Deduped is set when a replayed ping was acknowledged without
	// re-appending it.
	Deduped bool
}

// IngestService accepts one validated sample at a time, maintains the
// device's open session buffer and closes sessions whose gap exceeded the
// timeout. Each call is one synchronous transaction over durable state;
// session expiry is detected lazily, on the next ping or dashboard view.
type IngestService struct {
	store    telemetry.SessionStore
	registry telemetry.DeviceRegistry
	cfg      Config
	locks    *DeviceLocks
	logger   *log.Logger
}

// NewIngestService constructs an ingest service.
func NewIngestService(store telemetry.SessionStore, registry telemetry.DeviceRegistry, cfg Config, locks *DeviceLocks, logger *log.Logger) (*IngestService, error) {
	if store == nil {
		return nil, errors.New("ingest service: nil store")
	}
	if registry == nil {
		return nil, errors.New("ingest service: nil registry")
	}
	if locks == nil {
		return nil, errors.New("ingest service: nil device locks")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestService{store: store, registry: registry, cfg: cfg, locks: locks, logger: logger}, nil
}

// Ingest validates and applies one ping. Validation failures and registry
// misses mutate nothing. The gap decision compares against the incoming
// sample's own timestamp, never wall clock, so replays are deterministic.
func (s *IngestService) Ingest(ctx context.Context, deviceID, timestamp, timezone string, value float64) (IngestResult, error) {
	if deviceID == "" {
		return IngestResult{}, telemetry.ErrEmptyDeviceID
	}
	sample, err := telemetry.NewSample(timestamp, timezone, value)
	if err != nil {
		return IngestResult{}, err
	}
	registered, err := s.registry.IsRegistered(ctx, deviceID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: registry: %v", telemetry.ErrStorage, err)
	}
	if !registered {
		return IngestResult{}, telemetry.ErrDeviceNotRegistered
	}

	lock := s.locks.ForDevice(deviceID)
	lock.Lock()
	defer lock.Unlock()

	buffer, err := s.store.LoadBuffer(ctx, deviceID)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: load buffer: %v", telemetry.ErrStorage, err)
	}

	if len(buffer) == 0 {
		if err := s.saveBuffer(ctx, deviceID, []telemetry.Sample{sample}); err != nil {
			return IngestResult{}, err
		}
		return IngestResult{Status: StatusNewSession}, nil
	}

	policies := s.cfg.PoliciesForDevice(deviceID)
	last := buffer[len(buffer)-1]

	if policies.DedupeReplays && last.Timestamp == sample.Timestamp {
		return IngestResult{Status: StatusContinuingSession, Deduped: true}, nil
	}

	ref, err := sample.Instant()
	if err != nil {
		return IngestResult{}, err
	}
	exceeded, _, err := telemetry.GapExceeded(last, ref, policies.Timeout())
	if err != nil {
		// Buffer loaded from storage holds an unusable zone; fail closed
		// without touching state.
		return IngestResult{}, err
	}

	if !exceeded {
		if err := s.saveBuffer(ctx, deviceID, append(buffer, sample)); err != nil {
			return IngestResult{}, err
		}
		return IngestResult{Status: StatusContinuingSession}, nil
	}

	if len(buffer) < 2 {
		// A lone stale reading before a long silence cannot yield a valid
		// duration; drop it rather than pollute the event log.
		if err := s.saveBuffer(ctx, deviceID, []telemetry.Sample{sample}); err != nil {
			return IngestResult{}, err
		}
		metrics.IncSessionDiscarded("lone_sample")
		return IngestResult{Status: StatusNewSession, DiscardedLoneSample: true}, nil
	}

	event, err := telemetry.Compile(deviceID, buffer, policies.DischargeCoefficient)
	if err != nil {
		if errors.Is(err, telemetry.ErrNegativeDuration) {
			// Arrival order is trusted, not verified; a buffer that went
			// backwards in time is dropped like a lone stale sample so the
			// device does not wedge.
			s.logger.Printf("ingest: device=%s dropping out-of-order buffer (%d samples)", deviceID, len(buffer))
			if err := s.saveBuffer(ctx, deviceID, []telemetry.Sample{sample}); err != nil {
				return IngestResult{}, err
			}
			metrics.IncSessionDiscarded("out_of_order")
			return IngestResult{Status: StatusNewSession, DiscardedLoneSample: true}, nil
		}
		return IngestResult{}, err
	}
	if policies.RequirePositiveDuration && event.DurationSeconds <= 0 {
		if err := s.saveBuffer(ctx, deviceID, []telemetry.Sample{sample}); err != nil {
			return IngestResult{}, err
		}
		metrics.IncSessionDiscarded("zero_duration")
		return IngestResult{Status: StatusNewSession, DiscardedLoneSample: true}, nil
	}

	if err := s.store.CloseSession(ctx, deviceID, event, []telemetry.Sample{sample}); err != nil {
		return IngestResult{}, fmt.Errorf("%w: close session: %v", telemetry.ErrStorage, err)
	}
	metrics.IncSessionClosed("ingest")
	s.logger.Printf("ingest: device=%s session closed start=%s end=%s duration=%ds", deviceID, event.StartTime, event.EndTime, event.DurationSeconds)
	return IngestResult{Status: StatusNewSession, ClosedEvent: &event}, nil
}

func (s *IngestService) saveBuffer(ctx context.Context, deviceID string, buffer []telemetry.Sample) error {
	if err := s.store.SaveBuffer(ctx, deviceID, buffer); err != nil {
		return fmt.Errorf("%w: save buffer: %v", telemetry.ErrStorage, err)
	}
	return nil
}
