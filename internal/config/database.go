package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// tlsConfigName is the name used to register custom TLS configs with the MySQL driver.
const tlsConfigName = "yggdrasil-custom"

// DSN returns a MySQL-compatible data source name.
// If ConnectionString is set, it is used directly (with TLS config applied).
// Otherwise, builds DSN from discrete fields.
func (d *DatabaseConfig) DSN() string {
	var dsn string

	if d.ConnectionString != "" {
		dsn = d.ConnectionString
		if !strings.Contains(dsn, "parseTime") {
			if strings.Contains(dsn, "?") {
				dsn += "&parseTime=true"
			} else {
				dsn += "?parseTime=true"
			}
		}
		if !strings.Contains(dsn, "loc=") {
			dsn += "&loc=UTC"
		}
	} else {
		dsn = fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			d.User,
			d.Password,
			d.Host,
			d.Port,
			d.Database,
		)
	}

	tlsParam := d.effectiveTLSParam()
	if tlsParam != "" && !strings.Contains(dsn, "tls=") {
		dsn += fmt.Sprintf("&tls=%s", tlsParam)
	}

	return dsn
}

// EffectiveDatabaseName returns the database the connection will target,
// preferring an explicit database.database over the one embedded in the DSN.
func (d *DatabaseConfig) EffectiveDatabaseName() (string, error) {
	configDatabase := strings.TrimSpace(d.Database)
	dsn := strings.TrimSpace(d.ConnectionString)

	var dsnDatabase string
	if dsn != "" {
		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("database.dsn is invalid: %w", err)
		}
		dsnDatabase = strings.TrimSpace(parsed.DBName)
	}

	if configDatabase != "" {
		if dsnDatabase != "" && configDatabase != dsnDatabase {
			return "", fmt.Errorf(
				"database mismatch: database.database=%q but database.dsn targets %q",
				configDatabase,
				dsnDatabase,
			)
		}
		return configDatabase, nil
	}
	if dsnDatabase != "" {
		return dsnDatabase, nil
	}
	return "", fmt.Errorf("no database configured: set database.database or include /<database> in database.dsn")
}

// effectiveTLSParam returns the TLS parameter value for the DSN.
// Returns the registered config name for custom TLS, or empty string if no
// TLS is configured.
func (d *DatabaseConfig) effectiveTLSParam() string {
	switch d.TLS.Mode {
	case "":
		return ""
	case "off":
		return "false"
	case "skip-verify":
		return "skip-verify"
	case "verify-full":
		return tlsConfigName
	default:
		// Unknown mode, let the driver handle it.
		return d.TLS.Mode
	}
}

// RegisterTLS registers a custom TLS configuration with the MySQL driver.
// Must be called before opening the database connection when using
// verify-full mode. Returns nil if no custom TLS configuration is needed.
func (d *DatabaseConfig) RegisterTLS() error {
	if d.TLS.Mode != "verify-full" {
		return nil
	}

	tlsCfg, err := d.buildTLSConfig()
	if err != nil {
		return fmt.Errorf("failed to build TLS config: %w", err)
	}

	if err := mysql.RegisterTLSConfig(tlsConfigName, tlsCfg); err != nil {
		return fmt.Errorf("failed to register TLS config: %w", err)
	}

	return nil
}

// buildTLSConfig creates a tls.Config based on the DatabaseTLSConfig settings.
func (d *DatabaseConfig) buildTLSConfig() (*tls.Config, error) {
	tlsCfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	if d.TLS.CAFile != "" {
		caCert, err := os.ReadFile(d.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA file %q: %w", d.TLS.CAFile, err)
		}

		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to parse CA certificate from %q", d.TLS.CAFile)
		}
		tlsCfg.RootCAs = certPool
	}

	if d.TLS.CertFile != "" && d.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(d.TLS.CertFile, d.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	} else if d.TLS.CertFile != "" || d.TLS.KeyFile != "" {
		return nil, fmt.Errorf("both cert_file and key_file must be specified for client certificate authentication")
	}

	if d.TLS.ServerName != "" {
		tlsCfg.ServerName = d.TLS.ServerName
	}

	return tlsCfg, nil
}
