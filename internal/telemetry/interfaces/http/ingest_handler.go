package http

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"pumpwatch/internal/observability/metrics"
	"pumpwatch/internal/telemetry/application"
	telemetry "pumpwatch/internal/telemetry/domain"
)

// IngestHandler accepts pump controller pings. Controllers issue plain
// GETs with query parameters, so both GET and POST form bodies are
// accepted and every response is plain text.
type IngestHandler struct {
	service *application.IngestService
	logger  *log.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *application.IngestService, logger *log.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

// ServeHTTP ingests one ping.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	result := metrics.IngestResultSuccess
	defer func() {
		metrics.ObserveIngest(result, time.Since(start))
	}()

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		result = metrics.IngestResultError
		metrics.IncIngestError("method_not_allowed")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		result = metrics.IngestResultError
		metrics.IncIngestError("bad_form")
		respondText(w, http.StatusBadRequest, "Error: malformed request body.")
		return
	}

	deviceID := r.Form.Get("deviceId")
	current := r.Form.Get("current")
	timestamp := r.Form.Get("timestamp")
	timezone := r.Form.Get("timezone")
	if deviceID == "" || current == "" || timestamp == "" || timezone == "" {
		result = metrics.IngestResultError
		metrics.IncIngestError("missing_params")
		respondText(w, http.StatusBadRequest, "Error: one or more required parameters are missing or empty.")
		return
	}

	value, err := strconv.ParseFloat(current, 64)
	if err != nil {
		result = metrics.IngestResultError
		metrics.IncIngestError("invalid_value")
		respondText(w, http.StatusBadRequest, "Error: current must be a number.")
		return
	}

	res, err := h.service.Ingest(r.Context(), deviceID, timestamp, timezone, value)
	if err != nil {
		result = metrics.IngestResultError
		h.respondIngestError(w, deviceID, err)
		return
	}

	respondText(w, http.StatusOK, fmt.Sprintf("Ping saved successfully (%s).", res.Status))
}

func (h *IngestHandler) respondIngestError(w http.ResponseWriter, deviceID string, err error) {
	switch {
	case errors.Is(err, telemetry.ErrDeviceNotRegistered):
		metrics.IncIngestError("unregistered_device")
		respondText(w, http.StatusForbidden, fmt.Sprintf("Error: device %q is not registered.", deviceID))
	case errors.Is(err, telemetry.ErrInvalidTimestamp):
		metrics.IncIngestError("invalid_timestamp")
		respondText(w, http.StatusBadRequest, "Error: timestamp must use the format 2006-01-02 15:04:05.")
	case errors.Is(err, telemetry.ErrInvalidTimezone):
		metrics.IncIngestError("invalid_timezone")
		respondText(w, http.StatusBadRequest, "Error: unknown IANA timezone.")
	case errors.Is(err, telemetry.ErrInvalidValue):
		metrics.IncIngestError("invalid_value")
		respondText(w, http.StatusBadRequest, "Error: current must be a non-negative number.")
	case errors.Is(err, telemetry.ErrStorage):
		metrics.IncIngestError("storage")
		h.logger.Printf("ingest: device=%s storage error: %v", deviceID, err)
		respondText(w, http.StatusInternalServerError, "Error: could not persist the ping.")
	default:
		metrics.IncIngestError("internal")
		h.logger.Printf("ingest: device=%s error: %v", deviceID, err)
		respondText(w, http.StatusInternalServerError, "Error: internal failure.")
	}
}

func respondText(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = fmt.Fprintln(w, message)
}
