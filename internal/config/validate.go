package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration for errors and returns validation
// results. It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	switch c.Storage.Backend {
	case "memory":
	case "mysql":
		c.Database.validate(result)
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unknown backend %q", c.Storage.Backend),
			Hint:    "valid backends: memory, mysql",
		})
	}
	c.Server.validate(result)
	c.Observability.validate(result)

	return result
}

func (d *DatabaseConfig) validate(result *ValidationResult) {
	if d.ConnectionString == "" {
		if d.Host == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.host",
				Message: "host cannot be empty",
				Hint:    "set database.host or provide database.dsn",
			})
		}
		if d.Port < 1 || d.Port > 65535 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.port",
				Message: fmt.Sprintf("port %d is out of valid range (1-65535)", d.Port),
			})
		}
		if d.User == "" {
			result.Errors = append(result.Errors, ValidationError{
				Field:   "database.user",
				Message: "user cannot be empty",
			})
		}
	}

	switch d.TLS.Mode {
	case "", "off", "skip-verify", "verify-full":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.tls.mode",
			Message: fmt.Sprintf("unknown TLS mode %q", d.TLS.Mode),
			Hint:    "valid modes: off, skip-verify, verify-full",
		})
	}
	if d.TLS.Mode == "verify-full" && d.TLS.CAFile == "" {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.tls.ca_file",
			Message: "verify-full without a CA file relies on the system trust store",
		})
	}

	if d.Pool.MaxOpen < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_open",
			Message: "cannot be negative",
		})
	}
	if d.Pool.MaxIdle < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "database.pool.max_idle",
			Message: "cannot be negative",
		})
	}
	if d.Pool.MaxOpen > 0 && d.Pool.MaxIdle > d.Pool.MaxOpen {
		result.Warnings = append(result.Warnings, ValidationWarning{
			Field:   "database.pool.max_idle",
			Message: fmt.Sprintf("max_idle (%d) exceeds max_open (%d); extra idle connections are discarded", d.Pool.MaxIdle, d.Pool.MaxOpen),
		})
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port),
		})
	}
	if s.ShutdownTimeout < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "server.shutdown_timeout",
			Message: "cannot be negative",
		})
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	if o.ServiceName == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.service_name",
			Message: "service name cannot be empty",
		})
	}
	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.trace_sample_ratio",
			Message: fmt.Sprintf("sample ratio %v is out of valid range (0.0-1.0)", o.TraceSampleRatio),
		})
	}

	switch o.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.level",
			Message: fmt.Sprintf("unknown log level %q", o.Logging.Level),
			Hint:    "valid levels: debug, info, warn, error",
		})
	}
	switch o.Logging.Format {
	case "json", "text":
	default:
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.logging.format",
			Message: fmt.Sprintf("unknown log format %q", o.Logging.Format),
			Hint:    "valid formats: json, text",
		})
	}

	for _, otlp := range []struct {
		field string
		cfg   OTLPConfig
	}{
		{"observability.otlp", o.OTLP},
		{"observability.traces", o.GetTracesConfig()},
		{"observability.logs", o.GetLogsConfig()},
	} {
		switch otlp.cfg.Protocol {
		case "", "grpc", "http/protobuf":
		default:
			result.Errors = append(result.Errors, ValidationError{
				Field:   otlp.field + ".protocol",
				Message: fmt.Sprintf("unknown OTLP protocol %q", otlp.cfg.Protocol),
				Hint:    "valid protocols: grpc, http/protobuf",
			})
		}
		switch otlp.cfg.Compression {
		case "", "none", "gzip":
		default:
			result.Errors = append(result.Errors, ValidationError{
				Field:   otlp.field + ".compression",
				Message: fmt.Sprintf("unknown OTLP compression %q", otlp.cfg.Compression),
				Hint:    "valid values: none, gzip",
			})
		}
	}

	if (o.TracingEnabled || o.Logging.ExportsEnabled) && o.OTLP.Endpoint == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "observability.otlp.endpoint",
			Message: "endpoint is required when tracing or log export is enabled",
		})
	}
}
