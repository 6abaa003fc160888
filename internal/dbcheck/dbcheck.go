// Package dbcheck probes connectivity to the platform's relational
// database. It answers one question for the doctor command: does the
// configured database accept connections right now. No schema access, no
// credential management.
package dbcheck

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// Drivers for the platform databases the probe can reach.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	dserrors "github.com/tendersight/vaultops/internal/errors"
)

// DefaultTimeout bounds one connectivity check.
const DefaultTimeout = 5 * time.Second

// driverMap normalizes config aliases onto registered driver names.
var driverMap = map[string]string{
	"postgres":   "postgres",
	"postgresql": "postgres",
	"mysql":      "mysql",
	"mariadb":    "mysql",
}

// Probe checks that the platform database answers a ping.
type Probe struct {
	driver  string
	dsn     string
	timeout time.Duration

	// open is the sql.Open seam, replaced in tests.
	open func(driver, dsn string) (*sql.DB, error)
}

// New builds a probe for the configured driver and DSN.
func New(driver, dsn string) (*Probe, error) {
	normalized, ok := driverMap[strings.ToLower(driver)]
	if !ok {
		return nil, dserrors.ConfigError{
			Field:      "database.driver",
			Value:      driver,
			Message:    "unsupported database driver",
			Suggestion: "Use one of: postgres, mysql",
		}
	}
	if dsn == "" {
		return nil, dserrors.ConfigError{
			Field:      "database.dsn",
			Message:    "database DSN is required when a driver is configured",
			Suggestion: "Set 'database.dsn' in vaultops.yaml",
		}
	}

	return &Probe{
		driver:  normalized,
		dsn:     dsn,
		timeout: DefaultTimeout,
		open:    sql.Open,
	}, nil
}

// Driver reports the normalized driver name.
func (p *Probe) Driver() string {
	return p.driver
}

// Ping opens a connection and verifies the database answers within the
// probe timeout.
func (p *Probe) Ping(ctx context.Context) error {
	db, err := p.open(p.driver, p.dsn)
	if err != nil {
		return fmt.Errorf("failed to open database handle: %w", err)
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return dserrors.UserError{
			Message:    fmt.Sprintf("platform database (%s) is unreachable", p.driver),
			Suggestion: "Check 'database.dsn' in vaultops.yaml and that the database accepts connections",
			Err:        err,
		}
	}

	return nil
}
