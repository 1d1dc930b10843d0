package storage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"availsdk/internal/application"
	"availsdk/internal/infrastructure/mysql"
	"availsdk/internal/infrastructure/sqlite"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Ledger is everything the services need from a ledger store.
type Ledger interface {
	application.LedgerRepository
	application.LedgerQueryRepository
	application.BlockRepository
	Ping(ctx context.Context) error
	Close() error
}

type Config struct {
	Driver string
	DSN    string
	// RedisAddr enables the submission query cache for MySQL.
	RedisAddr string
}

func Open(cfg Config) (Ledger, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case DriverMySQL:
		base, err := mysql.NewRepository(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open mysql ledger: %w", err)
		}
		cached, err := mysql.NewCachedRepository(base, mysql.CacheConfig{Addr: cfg.RedisAddr})
		if err != nil {
			slog.Warn("redis cache disabled", "addr", cfg.RedisAddr, "err", err)
			return base, nil
		}
		return cached, nil
	case "", DriverSQLite:
		repo, err := sqlite.NewRepository(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite ledger: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}
