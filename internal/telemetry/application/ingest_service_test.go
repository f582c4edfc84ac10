package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	telemetry "pumpwatch/internal/telemetry/domain"
	"pumpwatch/internal/telemetry/infrastructure/memory"
)

func newTestIngestService(t *testing.T, store *memory.SessionStore, registry *memory.Registry, cfg Config) *IngestService {
	t.Helper()
	service, err := NewIngestService(store, registry, cfg, NewDeviceLocks(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	return service
}

func defaultTestConfig() Config {
	return Config{Defaults: Policies{TimeoutSeconds: 60, DischargeCoefficient: 0.5}}
}

func TestIngest_FirstPingOpensSession(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	res, err := service.Ingest(context.Background(), "D1", "2026-04-11 10:00:00", "UTC", 2.0)
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Status != StatusNewSession {
		t.Fatalf("expected %q, got %q", StatusNewSession, res.Status)
	}

	buffer, err := store.LoadBuffer(context.Background(), "D1")
	if err != nil {
		t.Fatalf("load buffer: %v", err)
	}
	if len(buffer) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(buffer))
	}
	if buffer[0].Value != 2.0 {
		t.Fatalf("expected value 2.0, got %v", buffer[0].Value)
	}
}

func TestIngest_WithinTimeoutContinues(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	res := mustIngest(t, service, "D1", "2026-04-11 10:00:30", 2.2)
	if res.Status != StatusContinuingSession {
		t.Fatalf("expected %q, got %q", StatusContinuingSession, res.Status)
	}

	buffer, _ := store.LoadBuffer(context.Background(), "D1")
	if len(buffer) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(buffer))
	}
	events, _ := store.ListEvents(context.Background(), "D1", 0, 0)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestIngest_ExactTimeoutGapContinues(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	res := mustIngest(t, service, "D1", "2026-04-11 10:01:00", 2.2)
	if res.Status != StatusContinuingSession {
		t.Fatalf("expected a 60s gap to continue the session, got %q", res.Status)
	}
}

func TestIngest_GapClosesSessionAndReseeds(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	mustIngest(t, service, "D1", "2026-04-11 10:00:30", 2.2)
	res := mustIngest(t, service, "D1", "2026-04-11 10:05:00", 1.9)
	if res.Status != StatusNewSession {
		t.Fatalf("expected %q, got %q", StatusNewSession, res.Status)
	}
	if res.ClosedEvent == nil {
		t.Fatalf("expected a closed event")
	}

	event := *res.ClosedEvent
	if event.Date != "2026-04-11" {
		t.Fatalf("expected date 2026-04-11, got %s", event.Date)
	}
	if event.StartTime != "2026-04-11 10:00:00" || event.EndTime != "2026-04-11 10:00:30" {
		t.Fatalf("unexpected window: %s .. %s", event.StartTime, event.EndTime)
	}
	if event.DurationSeconds != 30 {
		t.Fatalf("expected duration 30, got %d", event.DurationSeconds)
	}
	if event.AverageValue != 2.10 {
		t.Fatalf("expected average 2.10, got %v", event.AverageValue)
	}
	if event.DischargeVolume != 15 {
		t.Fatalf("expected discharge 15, got %v", event.DischargeVolume)
	}

	buffer, _ := store.LoadBuffer(context.Background(), "D1")
	if len(buffer) != 1 || buffer[0].Value != 1.9 {
		t.Fatalf("expected buffer reseeded with the closing ping, got %+v", buffer)
	}
	events, _ := store.ListEvents(context.Background(), "D1", 0, 0)
	if len(events) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(events))
	}
	if events[0] != event {
		t.Fatalf("stored event differs from returned event")
	}
}

func TestIngest_LoneStaleSampleDiscarded(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	res := mustIngest(t, service, "D1", "2026-04-11 10:05:00", 1.9)
	if res.Status != StatusNewSession {
		t.Fatalf("expected %q, got %q", StatusNewSession, res.Status)
	}
	if !res.DiscardedLoneSample {
		t.Fatalf("expected lone-sample discard")
	}
	if res.ClosedEvent != nil {
		t.Fatalf("a lone sample must not compile an event")
	}

	events, _ := store.ListEvents(context.Background(), "D1", 0, 0)
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	buffer, _ := store.LoadBuffer(context.Background(), "D1")
	if len(buffer) != 1 || buffer[0].Value != 1.9 {
		t.Fatalf("expected buffer reseeded, got %+v", buffer)
	}
}

func TestIngest_ValidationFailuresMutateNothing(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	cases := []struct {
		name      string
		deviceID  string
		timestamp string
		timezone  string
		value     float64
		want      error
	}{
		{"empty device", "", "2026-04-11 10:00:00", "UTC", 2.0, telemetry.ErrEmptyDeviceID},
		{"unregistered", "GHOST", "2026-04-11 10:00:00", "UTC", 2.0, telemetry.ErrDeviceNotRegistered},
		{"bad timestamp", "D1", "11/04/2026", "UTC", 2.0, telemetry.ErrInvalidTimestamp},
		{"bad timezone", "D1", "2026-04-11 10:00:00", "Mars/Olympus", 2.0, telemetry.ErrInvalidTimezone},
		{"negative value", "D1", "2026-04-11 10:00:00", "UTC", -1.0, telemetry.ErrInvalidValue},
	}
	for _, tc := range cases {
		_, err := service.Ingest(context.Background(), tc.deviceID, tc.timestamp, tc.timezone, tc.value)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	buffer, _ := store.LoadBuffer(context.Background(), "D1")
	if len(buffer) != 0 {
		t.Fatalf("expected no mutation, got %d samples", len(buffer))
	}
}

func TestIngest_DevicesAreIsolated(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1", "D2"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	mustIngest(t, service, "D2", "2026-04-11 10:00:05", 3.0)
	mustIngest(t, service, "D1", "2026-04-11 10:00:30", 2.2)

	d1, _ := store.LoadBuffer(context.Background(), "D1")
	d2, _ := store.LoadBuffer(context.Background(), "D2")
	if len(d1) != 2 {
		t.Fatalf("expected 2 samples for D1, got %d", len(d1))
	}
	if len(d2) != 1 {
		t.Fatalf("expected 1 sample for D2, got %d", len(d2))
	}
}

func TestIngest_DedupeReplays(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	cfg := defaultTestConfig()
	cfg.Defaults.DedupeReplays = true
	service := newTestIngestService(t, store, registry, cfg)

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	res := mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	if !res.Deduped {
		t.Fatalf("expected replay to dedupe")
	}
	buffer, _ := store.LoadBuffer(context.Background(), "D1")
	if len(buffer) != 1 {
		t.Fatalf("expected 1 sample after replay, got %d", len(buffer))
	}
}

func TestIngest_ReplayAppendsWithoutDedupe(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	res := mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	if res.Deduped {
		t.Fatalf("dedupe is off by default")
	}
	buffer, _ := store.LoadBuffer(context.Background(), "D1")
	if len(buffer) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(buffer))
	}
}

func TestIngest_OutOfOrderBufferDropped(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	service := newTestIngestService(t, store, registry, defaultTestConfig())

	mustIngest(t, service, "D1", "2026-04-11 10:00:30", 2.0)
	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.2)
	res := mustIngest(t, service, "D1", "2026-04-11 10:05:00", 1.9)
	if !res.DiscardedLoneSample {
		t.Fatalf("expected out-of-order buffer to be discarded")
	}
	events, _ := store.ListEvents(context.Background(), "D1", 0, 0)
	if len(events) != 0 {
		t.Fatalf("expected no events from a backwards buffer, got %d", len(events))
	}
}

func TestIngest_RequirePositiveDuration(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	cfg := defaultTestConfig()
	cfg.Defaults.RequirePositiveDuration = true
	service := newTestIngestService(t, store, registry, cfg)

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.2)
	res := mustIngest(t, service, "D1", "2026-04-11 10:05:00", 1.9)
	if res.ClosedEvent != nil {
		t.Fatalf("zero-duration session must be discarded under require_positive_duration")
	}
	if !res.DiscardedLoneSample {
		t.Fatalf("expected discard")
	}
}

func TestIngest_DeviceOverridesApply(t *testing.T) {
	store := memory.NewSessionStore()
	registry := memory.NewRegistry([]string{"D1"})
	cfg := defaultTestConfig()
	cfg.Devices = map[string]DeviceOverrides{"D1": {TimeoutSeconds: 300}}
	service := newTestIngestService(t, store, registry, cfg)

	mustIngest(t, service, "D1", "2026-04-11 10:00:00", 2.0)
	res := mustIngest(t, service, "D1", "2026-04-11 10:04:00", 2.2)
	if res.Status != StatusContinuingSession {
		t.Fatalf("expected the per-device timeout to keep the session open, got %q", res.Status)
	}
}

func mustIngest(t *testing.T, service *IngestService, deviceID, timestamp string, value float64) IngestResult {
	t.Helper()
	res, err := service.Ingest(context.Background(), deviceID, timestamp, "UTC", value)
	if err != nil {
		t.Fatalf("ingest %s %s: %v", deviceID, timestamp, err)
	}
	return res
}
