package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"pumpwatch/internal/observability/metrics"
	telemetry "pumpwatch/internal/telemetry/domain"
)

// Status is the dashboard-facing device state.
type Status string

const (
	// StatusOnline: last ping within the timeout.
	StatusOnline Status = "online"
	// StatusOffline: last ping overdue; the pending session gets compiled.
	StatusOffline Status = "offline"
	// StatusNoData: no open session buffer.
	StatusNoData Status = "no_data"
	// StatusUnknown: the stored zone did not parse; status is indeterminate.
	StatusUnknown Status = "unknown"
)

// StatusReport is the engine-computed snapshot the dashboard renders.
type StatusReport struct {
	DeviceID     string            `json:"device_id"`
	Status       Status            `json:"status"`
	GapSeconds   float64           `json:"gap_seconds"`
	SessionStart *telemetry.Sample `json:"session_start,omitempty"`
	LatestSample *telemetry.Sample `json:"latest_sample,omitempty"`
	// ClosedEvent is set when this very check force-closed an overdue
	// session.
	ClosedEvent *telemetry.Event `json:"closed_event,omitempty"`
}

// StatusService derives online/offline from the same gap rule ingestion
// uses, with wall-clock now as the reference.
//
// CurrentStatus is NOT read-only: finding a device offline compiles and
// persists the pending event and clears the buffer, exactly like the
// ingest gap branch, so a session is not lost merely because no further
// ping ever arrives. Use PeekStatus where side effects are undesired.
type StatusService struct {
	store    telemetry.SessionStore
	registry telemetry.DeviceRegistry
	cfg      Config
	locks    *DeviceLocks
	logger   *log.Logger
}

// NewStatusService constructs a status service. The DeviceLocks instance
// must be the one the ingest service uses.
func NewStatusService(store telemetry.SessionStore, registry telemetry.DeviceRegistry, cfg Config, locks *DeviceLocks, logger *log.Logger) (*StatusService, error) {
	if store == nil {
		return nil, errors.New("status service: nil store")
	}
	if registry == nil {
		return nil, errors.New("status service: nil registry")
	}
	if locks == nil {
		return nil, errors.New("status service: nil device locks")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &StatusService{store: store, registry: registry, cfg: cfg, locks: locks, logger: logger}, nil
}

// PeekStatus evaluates status without any side effect.
func (s *StatusService) PeekStatus(ctx context.Context, deviceID string, now time.Time) (StatusReport, error) {
	if deviceID == "" {
		return StatusReport{}, telemetry.ErrEmptyDeviceID
	}
	buffer, err := s.store.LoadBuffer(ctx, deviceID)
	if err != nil {
		return StatusReport{}, fmt.Errorf("%w: load buffer: %v", telemetry.ErrStorage, err)
	}
	return s.evaluate(deviceID, buffer, now), nil
}

// CurrentStatus evaluates status and force-closes an overdue session.
func (s *StatusService) CurrentStatus(ctx context.Context, deviceID string, now time.Time) (StatusReport, error) {
	if deviceID == "" {
		return StatusReport{}, telemetry.ErrEmptyDeviceID
	}

	lock := s.locks.ForDevice(deviceID)
	lock.Lock()
	defer lock.Unlock()

	buffer, err := s.store.LoadBuffer(ctx, deviceID)
	if err != nil {
		return StatusReport{}, fmt.Errorf("%w: load buffer: %v", telemetry.ErrStorage, err)
	}
	report := s.evaluate(deviceID, buffer, now)
	if report.Status != StatusOffline {
		return report, nil
	}

	policies := s.cfg.PoliciesForDevice(deviceID)
	if len(buffer) < 2 {
		// Same policy as ingest: a lone stale sample is dropped, never
		// compiled. Unlike ingest there is no new sample to reseed with.
		if err := s.store.SaveBuffer(ctx, deviceID, nil); err != nil {
			return StatusReport{}, fmt.Errorf("%w: save buffer: %v", telemetry.ErrStorage, err)
		}
		metrics.IncSessionDiscarded("lone_sample")
		return report, nil
	}

	event, err := telemetry.Compile(deviceID, buffer, policies.DischargeCoefficient)
	if err != nil {
		if errors.Is(err, telemetry.ErrNegativeDuration) {
			s.logger.Printf("status: device=%s dropping out-of-order buffer (%d samples)", deviceID, len(buffer))
			if err := s.store.SaveBuffer(ctx, deviceID, nil); err != nil {
				return StatusReport{}, fmt.Errorf("%w: save buffer: %v", telemetry.ErrStorage, err)
			}
			metrics.IncSessionDiscarded("out_of_order")
			return report, nil
		}
		return StatusReport{}, err
	}
	if policies.RequirePositiveDuration && event.DurationSeconds <= 0 {
		if err := s.store.SaveBuffer(ctx, deviceID, nil); err != nil {
			return StatusReport{}, fmt.Errorf("%w: save buffer: %v", telemetry.ErrStorage, err)
		}
		metrics.IncSessionDiscarded("zero_duration")
		return report, nil
	}

	if err := s.store.CloseSession(ctx, deviceID, event, nil); err != nil {
		return StatusReport{}, fmt.Errorf("%w: close session: %v", telemetry.ErrStorage, err)
	}
	metrics.IncSessionClosed("status")
	s.logger.Printf("status: device=%s overdue session closed start=%s end=%s duration=%ds", deviceID, event.StartTime, event.EndTime, event.DurationSeconds)
	report.ClosedEvent = &event
	return report, nil
}

func (s *StatusService) evaluate(deviceID string, buffer []telemetry.Sample, now time.Time) StatusReport {
	report := StatusReport{DeviceID: deviceID, Status: StatusNoData}
	if len(buffer) == 0 {
		return report
	}
	first := buffer[0]
	last := buffer[len(buffer)-1]
	report.SessionStart = &first
	report.LatestSample = &last

	policies := s.cfg.PoliciesForDevice(deviceID)
	exceeded, gap, err := telemetry.GapExceeded(last, now, policies.Timeout())
	if err != nil {
		report.Status = StatusUnknown
		return report
	}
	report.GapSeconds = gap
	if exceeded {
		report.Status = StatusOffline
	} else {
		report.Status = StatusOnline
	}
	return report
}
