package factory

import (
	"errors"
	"strings"

	"github.com/loykin/svcmon/internal/store"
	pg "github.com/loykin/svcmon/internal/store/postgres"
	sq "github.com/loykin/svcmon/internal/store/sqlite"
)

// NewFromDSN opens the cooldown blob store named by dsn. postgres:// and
// postgresql:// select Postgres; sqlite://<path> or a plain path selects
// SQLite.
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):])
	}
	if strings.Contains(d, "://") {
		return nil, errors.New("unsupported store DSN: " + d)
	}
	return sq.New(d)
}
