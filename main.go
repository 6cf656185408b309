package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	apihttp "qxlog/internal/api/http"
	"qxlog/internal/audit"
	"qxlog/internal/auth"
	"qxlog/internal/observability/logging"
	"qxlog/internal/observability/metrics"
	"qxlog/internal/observability/tracing"
	payoutapp "qxlog/internal/payouts/application"
	payoutrepo "qxlog/internal/payouts/infrastructure/postgres"
	payoutinterfaces "qxlog/internal/payouts/interfaces"
	pricingapp "qxlog/internal/pricing/application"
	pricingrepo "qxlog/internal/pricing/infrastructure/postgres"
	pricinghttp "qxlog/internal/pricing/interfaces/http"
	"qxlog/internal/procedures/adapters/users"
	procedureapp "qxlog/internal/procedures/application"
	procedurerepo "qxlog/internal/procedures/infrastructure/postgres"
	procedurehttp "qxlog/internal/procedures/interfaces/http"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	_ = godotenv.Load()
	cfg := loadConfig()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err := cfg.validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := tracing.Setup("qxlog", logger)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.WithError(err).Warn("tracer shutdown error")
		}
	}()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("db open error")
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.DBMaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Fatal("db ping error")
	}

	metrics.Init(db, logger)
	audit.SetFailureLogger(logger.WithField("component", "audit"))
	auditRepo := audit.NewRepository(db)

	pricingService, err := pricingapp.NewSettingService(
		pricingrepo.NewSettingRepository(db),
		users.NewDirectory(db),
		pricingapp.SystemClock{},
		logger.WithField("component", "pricing"),
	)
	if err != nil {
		logger.WithError(err).Fatal("pricing service error")
	}
	seed, err := pricingapp.LoadSeed(cfg.PricingSeedPath)
	if err != nil {
		logger.WithError(err).Fatal("pricing seed error")
	}
	if err := pricingService.EnsureSeeded(ctx, seed); err != nil {
		logger.WithError(err).Fatal("pricing seed write error")
	}

	procedureService, err := procedureapp.NewService(
		procedurerepo.NewRepository(db),
		pricingService,
		procedureapp.WithLogger(logger.WithField("component", "procedures")),
	)
	if err != nil {
		logger.WithError(err).Fatal("procedure service error")
	}

	settlementService, err := payoutapp.NewSettlementService(
		payoutrepo.NewRepository(db),
		payoutapp.WithTimeout(cfg.SettlementTimeout),
		payoutapp.WithLogger(logger.WithField("component", "payouts")),
	)
	if err != nil {
		logger.WithError(err).Fatal("settlement service error")
	}

	pricingHandler, err := pricinghttp.NewHandler(pricingService, auditRepo)
	if err != nil {
		logger.WithError(err).Fatal("pricing handler error")
	}
	procedureHandler, err := procedurehttp.NewHandler(procedureService, auditRepo)
	if err != nil {
		logger.WithError(err).Fatal("procedure handler error")
	}
	payoutHandler, err := payoutinterfaces.NewHandler(settlementService, auditRepo)
	if err != nil {
		logger.WithError(err).Fatal("payout handler error")
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/pricing/settings", pricingHandler)
	mux.Handle("/api/v1/pricing/quote", pricingHandler)
	mux.Handle("/api/v1/procedures", procedureHandler)
	mux.Handle("/api/v1/procedures/", procedureHandler)
	mux.Handle("/api/v1/payouts", payoutHandler)
	mux.Handle("/api/v1/payouts/", payoutHandler)
	mux.Handle("/api/v1/exports/procedures.csv", apihttp.NewExportProceduresCSVHandler(procedureService))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", apihttp.NewHealthHandler(db))

	handler := otelhttp.NewHandler(loggingMiddleware(authMiddleware.Wrap(mux), logger), "qxlog.http")
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("http shutdown error")
		}
	}()

	logger.WithField("addr", cfg.HTTPAddr).Info("http listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("http server error")
	}
	logger.Info("http server stopped")
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	LogLevel          string
	LogFormat         string
	PricingSeedPath   string
	SettlementTimeout time.Duration
	ShutdownTimeout   time.Duration
	DBMaxOpenConns    int
}

func loadConfig() config {
	return config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		LogLevel:          getenvDefault("LOG_LEVEL", "info"),
		LogFormat:         getenvDefault("LOG_FORMAT", "json"),
		PricingSeedPath:   getenvDefault("PRICING_SEED", ""),
		SettlementTimeout: getenvDuration("SETTLEMENT_TIMEOUT", payoutapp.DefaultSettlementTimeout),
		ShutdownTimeout:   getenvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		DBMaxOpenConns:    getenvIntDefault("DB_MAX_OPEN_CONNS", 20),
	}
}

func (c config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL or PG_DSN is required")
	}
	if c.JWTSecret == "" {
		return errors.New("AUTH_JWT_SECRET is required")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func loggingMiddleware(next http.Handler, logger logrus.FieldLogger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		fields := logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   resp.status,
			"duration": time.Since(start).String(),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
		logger.WithFields(fields).Info("http request")
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
