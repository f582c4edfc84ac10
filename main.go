package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"pumpwatch/internal/audit"
	"pumpwatch/internal/auth"
	masterdatarepo "pumpwatch/internal/masterdata/infrastructure/postgres"
	"pumpwatch/internal/observability/metrics"
	"pumpwatch/internal/telemetry/application"
	telemetry "pumpwatch/internal/telemetry/domain"
	telemetrymemory "pumpwatch/internal/telemetry/infrastructure/memory"
	telemetrypostgres "pumpwatch/internal/telemetry/infrastructure/postgres"
	telemetrysqlite "pumpwatch/internal/telemetry/infrastructure/sqlite"
	telemetryhttp "pumpwatch/internal/telemetry/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

func main() {
	_ = godotenv.Load()
	cfg := loadServerConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	engineCfg, err := application.LoadConfig()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	metrics.Init()

	ctx := context.Background()
	var (
		store       telemetry.SessionStore
		registry    telemetry.DeviceRegistry
		auditLogger audit.Logger
	)

	switch cfg.StoreBackend {
	case "postgres":
		db, err := sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		store = telemetrypostgres.NewSessionStore(db)
		deviceRepo := masterdatarepo.NewDeviceRepository(db)
		registry = masterdatarepo.NewRegistry(deviceRepo)
		auditRepo := audit.NewRepository(db)
		if err := auditRepo.EnsureSchema(ctx); err != nil {
			logger.Fatalf("audit schema error: %v", err)
		}
		auditLogger = auditRepo
	case "sqlite":
		sqliteStore, err := telemetrysqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatalf("sqlite open error: %v", err)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		registry = telemetrymemory.NewRegistry(engineCfg.Registry)
		auditLogger = audit.NewLogLogger(logger)
	case "memory":
		store = telemetrymemory.NewSessionStore()
		registry = telemetrymemory.NewRegistry(engineCfg.Registry)
		auditLogger = audit.NewLogLogger(logger)
	default:
		logger.Fatalf("unknown STORE_BACKEND %q (want memory, sqlite or postgres)", cfg.StoreBackend)
	}

	locks := application.NewDeviceLocks()
	ingestService, err := application.NewIngestService(store, registry, engineCfg, locks, logger)
	if err != nil {
		logger.Fatalf("ingest service error: %v", err)
	}
	statusService, err := application.NewStatusService(store, registry, engineCfg, locks, logger)
	if err != nil {
		logger.Fatalf("status service error: %v", err)
	}

	if interval, err := engineCfg.ParsedSweepInterval(); err != nil {
		logger.Fatalf("sweep interval error: %v", err)
	} else if interval > 0 {
		sweeper, err := application.NewSweeper(statusService, registry, interval, logger)
		if err != nil {
			logger.Fatalf("sweeper error: %v", err)
		}
		go sweeper.Run(ctx)
		logger.Printf("expiry sweep every %s", interval)
	}

	ingestHandler, err := telemetryhttp.NewIngestHandler(ingestService, logger)
	if err != nil {
		logger.Fatalf("ingest handler error: %v", err)
	}
	dashboardHandler, err := telemetryhttp.NewDashboardHandler(statusService, store, registry, auditLogger, logger)
	if err != nil {
		logger.Fatalf("dashboard handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics", "/ingest"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/ingest", ingestHandler)
	mux.Handle("/api/v1/devices", dashboardHandler)
	mux.Handle("/api/v1/devices/", dashboardHandler)
	mux.Handle("/api/v1/summary", dashboardHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	handler := loggingMiddleware(corsMiddleware.Handler(authMiddleware.Wrap(mux)), logger)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}
	logger.Printf("http listening on %s (store=%s)", cfg.HTTPAddr, cfg.StoreBackend)
	logger.Fatal(server.ListenAndServe())
}

type serverConfig struct {
	HTTPAddr     string
	StoreBackend string
	DatabaseURL  string
	SQLitePath   string
	JWTSecret    string
	CORSOrigins  []string
}

func loadServerConfig() serverConfig {
	cfg := serverConfig{
		HTTPAddr:     getenvDefault("HTTP_ADDR", ":8080"),
		StoreBackend: getenvDefault("STORE_BACKEND", "sqlite"),
		DatabaseURL:  getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		SQLitePath:   getenvDefault("SQLITE_PATH", "data/pumpwatch.db"),
		JWTSecret:    getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		CORSOrigins:  splitCSV(getenvDefault("CORS_ALLOWED_ORIGINS", "*")),
	}
	if cfg.StoreBackend == "postgres" && cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required for the postgres backend")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
