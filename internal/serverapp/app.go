// Package serverapp owns the runtime lifecycle of the yggdrasil server:
// configuration, observability providers, the record store, the GraphQL
// schema, and the HTTP server itself.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"github.com/graphql-go/graphql"

	"github.com/nater540/yggdrasil/internal/config"
	"github.com/nater540/yggdrasil/internal/logging"
	"github.com/nater540/yggdrasil/internal/observability"
	"github.com/nater540/yggdrasil/record"
)

// App owns runtime resources for the yggdrasil server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider

	db         *sql.DB
	dbStatsReg interface{ Unregister() error }
	store      record.Store

	schema  graphql.Schema
	mux     *http.ServeMux
	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}

// Store returns the record store once Init has completed.
func (a *App) Store() record.Store {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.store
}

// Handler returns the fully wrapped HTTP handler once Init has completed.
func (a *App) Handler() http.Handler {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.handler
}
