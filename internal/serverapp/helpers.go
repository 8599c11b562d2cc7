package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/graphql-go/graphql"
	gqlhandler "github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/nater540/yggdrasil/gql"
	"github.com/nater540/yggdrasil/internal/config"
	"github.com/nater540/yggdrasil/internal/logging"
	"github.com/nater540/yggdrasil/internal/middleware"
	"github.com/nater540/yggdrasil/internal/naming"
	"github.com/nater540/yggdrasil/internal/observability"
	"github.com/nater540/yggdrasil/memstore"
	"github.com/nater540/yggdrasil/mutation"
	"github.com/nater540/yggdrasil/record"
	"github.com/nater540/yggdrasil/sqlstore"
)

// InitLogger builds the application logger, wiring the OTLP log bridge when
// log export is enabled.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	loggerCfg := logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	logger := logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Observability.Logging.ExportsEnabled {
		return logger, nil, nil
	}

	logsConfig := cfg.Observability.GetLogsConfig()
	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Observability.ServiceName),
		slog.String("otlp_endpoint", logsConfig.Endpoint),
		slog.String("otlp_protocol", logsConfig.Protocol),
		slog.Bool("insecure", logsConfig.Insecure),
	)

	loggerProvider, err := observability.InitLoggerProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:    logsConfig.Endpoint,
			Protocol:    logsConfig.Protocol,
			Insecure:    logsConfig.Insecure,
			TLSCertFile: logsConfig.TLSCertFile,
			Headers:     logsConfig.Headers,
			Timeout:     logsConfig.Timeout,
			Compression: logsConfig.Compression,
		},
	})
	if err != nil {
		return nil, nil, err
	}

	loggerCfg.LoggerProvider = loggerProvider.Provider()
	logger = logging.NewLogger(loggerCfg)
	slog.SetDefault(logger.Logger)

	return logger, loggerProvider, nil
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *mutation.Metrics, error) {
	if !cfg.Observability.MetricsEnabled {
		return nil, nil, nil
	}

	meterProvider, err := observability.InitMeterProvider(observability.Config{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: cfg.Observability.ServiceVersion,
		Environment:    cfg.Observability.Environment,
	})
	if err != nil {
		return nil, nil, err
	}

	mutationMetrics, err := mutation.NewMetrics()
	if err != nil {
		return nil, nil, err
	}

	logger.Info("OpenTelemetry metrics initialized",
		slog.String("service_name", cfg.Observability.ServiceName),
	)
	return meterProvider, mutationMetrics, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Observability.TracingEnabled {
		return nil, nil
	}

	tracesConfig := cfg.Observability.GetTracesConfig()
	tracerProvider, err := observability.InitTracerProvider(observability.Config{
		ServiceName:      cfg.Observability.ServiceName,
		ServiceVersion:   cfg.Observability.ServiceVersion,
		Environment:      cfg.Observability.Environment,
		TraceSampleRatio: cfg.Observability.TraceSampleRatio,
		OTLPConfig: observability.OTLPExporterConfig{
			Endpoint:    tracesConfig.Endpoint,
			Protocol:    tracesConfig.Protocol,
			Insecure:    tracesConfig.Insecure,
			TLSCertFile: tracesConfig.TLSCertFile,
			Headers:     tracesConfig.Headers,
			Timeout:     tracesConfig.Timeout,
			Compression: tracesConfig.Compression,
		},
	})
	if err != nil {
		return nil, err
	}

	logger.Info("OpenTelemetry tracing initialized",
		slog.String("otlp_endpoint", tracesConfig.Endpoint),
		slog.Float64("sample_ratio", cfg.Observability.TraceSampleRatio),
	)
	return tracerProvider, nil
}

func connectDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	if err := cfg.Database.RegisterTLS(); err != nil {
		return nil, nil, fmt.Errorf("failed to register database TLS config: %w", err)
	}

	dsn := cfg.Database.DSN()

	if !cfg.Observability.MetricsEnabled && !cfg.Observability.TracingEnabled {
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, nil, err
		}
		return db, nil, nil
	}

	opts := []otelsql.Option{
		otelsql.WithAttributes(semconv.DBSystemMySQL),
	}
	if cfg.Observability.TracingEnabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{
			DisableErrSkip: true,
		}))
	}

	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var dbStatsReg interface{ Unregister() error }
	if cfg.Observability.MetricsEnabled {
		dbStatsReg, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("failed to register DB stats metrics", slog.String("error", err.Error()))
		}
	}

	logger.Info("database instrumentation enabled",
		slog.Bool("metrics", cfg.Observability.MetricsEnabled),
		slog.Bool("tracing", cfg.Observability.TracingEnabled),
	)
	return db, dbStatsReg, nil
}

func configureDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	db.SetMaxOpenConns(cfg.Database.Pool.MaxOpen)
	db.SetMaxIdleConns(cfg.Database.Pool.MaxIdle)
	db.SetConnMaxLifetime(cfg.Database.Pool.MaxLifetime)

	if err := waitForDatabase(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("host", cfg.Database.Host),
		slog.Int("pool_max_open", cfg.Database.Pool.MaxOpen),
		slog.Int("pool_max_idle", cfg.Database.Pool.MaxIdle),
		slog.Duration("pool_max_lifetime", cfg.Database.Pool.MaxLifetime),
	)
	return nil
}

func waitForDatabase(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	if timeout <= 0 {
		return db.PingContext(ctx)
	}

	deadline := time.Now().Add(timeout)
	interval := 2 * time.Second
	for {
		pingCtx, cancel := context.WithTimeout(ctx, interval)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("database did not become ready within %s: %w", timeout, err)
		}
		logger.Warn("database not ready, retrying",
			slog.String("error", err.Error()),
			slog.Duration("retry_in", interval),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// buildStore constructs the configured record store with the catalog entities
// and their validators. The mysql backend returns the database handle so the
// lifecycle can close it.
func buildStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, namer *naming.Namer) (record.Store, *sql.DB, interface{ Unregister() error }, error) {
	entities := catalogEntities()

	switch cfg.Storage.Backend {
	case "memory":
		store := memstore.New(entities...)
		store.Validator("project", validateProject)
		store.Validator("ticket", validateTicket)
		store.Validator("user", validateUser)
		logger.Info("using in-memory record store")
		return store, nil, nil, nil

	case "mysql":
		db, dbStatsReg, err := connectDB(cfg, logger)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := configureDatabase(ctx, cfg, logger, db); err != nil {
			_ = db.Close()
			return nil, nil, nil, err
		}
		store := sqlstore.New(db, entities, sqlstore.WithNamer(namer))
		store.Validator("project", validateProject)
		store.Validator("ticket", validateTicket)
		store.Validator("user", validateUser)
		return store, db, dbStatsReg, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// buildGraphQLHandler assembles the executable schema from the catalog and
// wraps it in the HTTP handler chain: logging -> graphql.
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, store record.Store, namer *naming.Namer, metrics *mutation.Metrics) (http.Handler, graphql.Schema, error) {
	exec := mutation.NewExecutor(store, mutation.WithMetrics(metrics))
	builder := gql.NewBuilder(store, exec, gql.WithNamer(namer))

	schema, err := builder.Schema(catalogMutations()...)
	if err != nil {
		return nil, graphql.Schema{}, fmt.Errorf("failed to build schema: %w", err)
	}

	graphqlHandler := gqlhandler.New(&gqlhandler.Config{
		Schema:   &schema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	})

	return middleware.LoggingMiddleware(logger)(graphqlHandler), schema, nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, graphqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/graphql", graphqlHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/graphql", http.StatusFound)
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler(db))

	if cfg.Observability.MetricsEnabled && meterProvider != nil {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, handler http.Handler) http.Handler {
	if cfg.Observability.MetricsEnabled || cfg.Observability.TracingEnabled {
		handler = otelhttp.NewHandler(handler, "http.server",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return httpRootSpanName(r)
			}),
		)
		logger.Info("HTTP instrumentation enabled")
	}
	return handler
}

func httpRootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}

	method := strings.TrimSpace(r.Method)
	if method == "" {
		method = "HTTP"
	}

	switch r.URL.Path {
	case "/", "/graphql", "/health", "/metrics":
		return method + " " + r.URL.Path
	default:
		return method + " /*"
	}
}

func buildServer(cfg *config.Config, handler http.Handler, serverAddr string) *http.Server {
	return &http.Server{
		Addr:         serverAddr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
}

func startServer(cfg *config.Config, logger *logging.Logger, srv *http.Server) chan error {
	serverErrors := make(chan error, 1)
	go func() {
		logAttrs := []any{
			slog.String("address", srv.Addr),
			slog.String("graphql_endpoint", "/graphql"),
			slog.String("health_endpoint", "/health"),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
			slog.String("storage_backend", cfg.Storage.Backend),
			slog.String("log_level", cfg.Observability.Logging.Level),
		}
		if cfg.Observability.MetricsEnabled {
			logAttrs = append(logAttrs, slog.String("metrics_endpoint", "/metrics"))
		}
		logger.Info("server starting", logAttrs...)

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- fmt.Errorf("server failed: %w", err)
		}
	}()
	return serverErrors
}

// healthHandler reports readiness. With the mysql backend it pings the
// database; the memory backend is always ready.
func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprintln(w, `{"status":"unhealthy"}`)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintln(w, `{"status":"ok"}`)
	}
}
