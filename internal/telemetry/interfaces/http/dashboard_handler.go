package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pumpwatch/internal/audit"
	"pumpwatch/internal/auth"
	"pumpwatch/internal/telemetry/application"
	telemetry "pumpwatch/internal/telemetry/domain"
)

// DashboardHandler serves the monitoring API under /api/v1.
type DashboardHandler struct {
	status      *application.StatusService
	store       telemetry.SessionStore
	registry    telemetry.DeviceRegistry
	auditLogger audit.Logger
	logger      *log.Logger
	now         func() time.Time
}

// NewDashboardHandler constructs a dashboard handler.
func NewDashboardHandler(status *application.StatusService, store telemetry.SessionStore, registry telemetry.DeviceRegistry, auditLogger audit.Logger, logger *log.Logger) (*DashboardHandler, error) {
	if status == nil {
		return nil, errors.New("dashboard handler: nil status service")
	}
	if store == nil {
		return nil, errors.New("dashboard handler: nil store")
	}
	if registry == nil {
		return nil, errors.New("dashboard handler: nil registry")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &DashboardHandler{
		status:      status,
		store:       store,
		registry:    registry,
		auditLogger: auditLogger,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

// ServeHTTP routes dashboard requests.
func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	path := r.URL.Path
	if path == "/api/v1/devices" {
		h.handleDevices(w, r)
		return
	}
	if path == "/api/v1/summary" {
		h.handleSummary(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/devices/") {
		rest := strings.TrimPrefix(path, "/api/v1/devices/")
		parts := strings.Split(rest, "/")
		if len(parts) < 2 || parts[0] == "" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		deviceID := parts[0]
		switch strings.Join(parts[1:], "/") {
		case "status":
			h.handleStatus(w, r, deviceID)
			return
		case "events":
			h.handleEvents(w, r, deviceID)
			return
		case "events/export":
			h.handleExport(w, r, deviceID)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *DashboardHandler) handleDevices(w http.ResponseWriter, r *http.Request) {
	ids, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Printf("dashboard: list devices: %v", err)
		http.Error(w, "registry error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"devices": ids})
}

// handleSummary renders the landing view: the status of the requested
// device, defaulting to the first registered one.
func (h *DashboardHandler) handleSummary(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		ids, err := h.registry.List(r.Context())
		if err != nil {
			h.logger.Printf("dashboard: list devices: %v", err)
			http.Error(w, "registry error", http.StatusInternalServerError)
			return
		}
		if len(ids) == 0 {
			http.Error(w, "no devices registered", http.StatusNotFound)
			return
		}
		deviceID = ids[0]
	}
	h.handleStatus(w, r, deviceID)
}

func (h *DashboardHandler) handleStatus(w http.ResponseWriter, r *http.Request, deviceID string) {
	registered, err := h.registry.IsRegistered(r.Context(), deviceID)
	if err != nil {
		h.logger.Printf("dashboard: device=%s registry error: %v", deviceID, err)
		http.Error(w, "registry error", http.StatusInternalServerError)
		return
	}
	if !registered {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	var report application.StatusReport
	if r.URL.Query().Get("peek") == "1" {
		report, err = h.status.PeekStatus(r.Context(), deviceID, h.now())
	} else {
		report, err = h.status.CurrentStatus(r.Context(), deviceID, h.now())
	}
	if err != nil {
		h.logger.Printf("dashboard: device=%s status error: %v", deviceID, err)
		http.Error(w, "status error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, report)
	if report.ClosedEvent != nil {
		h.logAudit(r, deviceID, "session.force_close")
	}
}

func (h *DashboardHandler) handleEvents(w http.ResponseWriter, r *http.Request, deviceID string) {
	registered, err := h.registry.IsRegistered(r.Context(), deviceID)
	if err != nil {
		h.logger.Printf("dashboard: device=%s registry error: %v", deviceID, err)
		http.Error(w, "registry error", http.StatusInternalServerError)
		return
	}
	if !registered {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	limit := parseIntDefault(r.URL.Query().Get("limit"), 0)
	offset := parseIntDefault(r.URL.Query().Get("offset"), 0)
	events, err := h.store.ListEvents(r.Context(), deviceID, limit, offset)
	if err != nil {
		h.logger.Printf("dashboard: device=%s list events: %v", deviceID, err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, map[string]any{"device_id": deviceID, "events": events})
}

func (h *DashboardHandler) handleExport(w http.ResponseWriter, r *http.Request, deviceID string) {
	registered, err := h.registry.IsRegistered(r.Context(), deviceID)
	if err != nil {
		http.Error(w, "registry error", http.StatusInternalServerError)
		return
	}
	if !registered {
		http.Error(w, "unknown device", http.StatusNotFound)
		return
	}

	events, err := h.store.ListEvents(r.Context(), deviceID, 0, 0)
	if err != nil {
		h.logger.Printf("dashboard: device=%s export list events: %v", deviceID, err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}

	format := r.URL.Query().Get("format")
	switch format {
	case "xlsx":
		data, err := BuildEventsXLSX(deviceID, events)
		if err != nil {
			h.logger.Printf("dashboard: device=%s xlsx export: %v", deviceID, err)
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", `attachment; filename="run-events-`+deviceID+`.xlsx"`)
		_, _ = w.Write(data)
	case "pdf":
		data, err := BuildEventsPDF(deviceID, events)
		if err != nil {
			h.logger.Printf("dashboard: device=%s pdf export: %v", deviceID, err)
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="run-events-`+deviceID+`.pdf"`)
		_, _ = w.Write(data)
	default:
		http.Error(w, "format must be xlsx or pdf", http.StatusBadRequest)
		return
	}
	h.logAudit(r, deviceID, "events.export."+format)
}

func (h *DashboardHandler) logAudit(r *http.Request, deviceID, action string) {
	if h.auditLogger == nil {
		return
	}
	entry := audit.Entry{
		Actor:     auth.SubjectFromContext(r.Context()),
		Role:      string(auth.RoleFromContext(r.Context())),
		Action:    action,
		DeviceID:  deviceID,
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	if err := h.auditLogger.Log(r.Context(), entry); err != nil {
		h.logger.Printf("dashboard: audit log: %v", err)
	}
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
