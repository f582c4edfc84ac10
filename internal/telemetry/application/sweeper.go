package application

import (
	"context"
	"errors"
	"log"
	"time"

	"pumpwatch/internal/observability/metrics"
	telemetry "pumpwatch/internal/telemetry/domain"
)

// Sweeper periodically runs the side-effecting status check for every
// registered device, so a session whose device went silent for good still
// gets compiled. Optional: without it expiry stays lazy and a silent
// device's last session waits for the next dashboard view.
type Sweeper struct {
	status   *StatusService
	registry telemetry.DeviceRegistry
	interval time.Duration
	logger   *log.Logger
}

// NewSweeper constructs a sweeper.
func NewSweeper(status *StatusService, registry telemetry.DeviceRegistry, interval time.Duration, logger *log.Logger) (*Sweeper, error) {
	if status == nil {
		return nil, errors.New("sweeper: nil status service")
	}
	if registry == nil {
		return nil, errors.New("sweeper: nil registry")
	}
	if interval <= 0 {
		return nil, errors.New("sweeper: interval must be positive")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Sweeper{status: status, registry: registry, interval: interval, logger: logger}, nil
}

// Run sweeps on the configured interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case tick := <-ticker.C:
			if err := s.Sweep(ctx, tick); err != nil {
				s.logger.Printf("sweep error: %v", err)
			}
		}
	}
}

// Sweep runs one pass. Per-device failures are logged and skipped so one
// unreadable device does not stall the rest.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	devices, err := s.registry.List(ctx)
	if err != nil {
		return err
	}
	for _, deviceID := range devices {
		report, err := s.status.CurrentStatus(ctx, deviceID, now)
		if err != nil {
			s.logger.Printf("sweep: device=%s status error: %v", deviceID, err)
			continue
		}
		if report.ClosedEvent != nil {
			s.logger.Printf("sweep: device=%s compiled overdue session start=%s", deviceID, report.ClosedEvent.StartTime)
		}
	}
	metrics.IncSweepRun()
	return nil
}
