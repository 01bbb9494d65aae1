package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/MarkoPoloResearchLab/bankledger/internal/store/flatfile"
	"github.com/MarkoPoloResearchLab/bankledger/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/bankledger/internal/store/pgstore"
	"github.com/MarkoPoloResearchLab/bankledger/pkg/ledger"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	driverPostgres = "postgres"
	driverMySQL    = "mysql"
	driverSQLite   = "sqlite"
	sqliteMemory   = ":memory:"
	defaultSQLite  = "bankledger.db"
	accountsFile   = "accounts.csv"
)

// Backend pairs the account store with the audit log of one storage choice.
type Backend struct {
	Accounts ledger.AccountStore
	Audit    ledger.AuditLog
	cleanup  func() error
}

// Close releases connections held by the backend.
func (backend *Backend) Close() error {
	if backend == nil || backend.cleanup == nil {
		return nil
	}
	return backend.cleanup()
}

// OpenBackend opens the storage selected by cfg.Backend.
func OpenBackend(ctx context.Context, cfg Config, logger *zap.Logger) (*Backend, error) {
	switch cfg.Backend {
	case BackendFlatFile:
		return openFlatFile(afero.NewOsFs(), cfg.DataDir, logger), nil
	case BackendSQL:
		return openSQL(ctx, cfg.DatabaseURL, logger)
	case BackendPGX:
		return openPGX(ctx, cfg.DatabaseURL, logger)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func openFlatFile(fs afero.Fs, dataDir string, logger *zap.Logger) *Backend {
	return &Backend{
		Accounts: flatfile.NewAccountFile(fs, filepath.Join(dataDir, accountsFile), logger),
		Audit:    flatfile.NewAuditDir(fs, dataDir, logger),
	}
}

func openSQL(ctx context.Context, databaseURL string, logger *zap.Logger) (*Backend, error) {
	db, cleanup, err := openDatabase(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	store := gormstore.New(db, logger)
	if err := store.AutoMigrate(ctx); err != nil {
		return nil, errors.Join(err, cleanup())
	}
	return &Backend{Accounts: store, Audit: store, cleanup: cleanup}, nil
}

func openPGX(ctx context.Context, databaseURL string, logger *zap.Logger) (*Backend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgx ping: %w", err)
	}
	store := pgstore.New(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Backend{
		Accounts: store,
		Audit:    store,
		cleanup: func() error {
			pool.Close()
			return nil
		},
	}, nil
}

func openDatabase(ctx context.Context, dsn string) (*gorm.DB, func() error, error) {
	driver, target, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}

	var db *gorm.DB
	cfg := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	}
	switch driver {
	case driverPostgres:
		db, err = gorm.Open(postgres.Open(target), cfg)
	case driverMySQL:
		db, err = gorm.Open(mysql.Open(target), cfg)
	case driverSQLite:
		db, err = gorm.Open(sqlite.Open(target), cfg)
	default:
		return nil, nil, fmt.Errorf("unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}
	if driver == driverSQLite {
		// One writer keeps sqlite from reporting SQLITE_BUSY under concurrent requests.
		sqlDB.SetMaxOpenConns(1)
	}
	cleanup := func() error { return sqlDB.Close() }
	return db.WithContext(ctx), cleanup, nil
}

// resolveDriver picks the GORM dialector from the DSN scheme and returns the
// connection string that dialector expects.
func resolveDriver(dsn string) (string, string, error) {
	trimmed := strings.TrimSpace(dsn)
	if strings.HasPrefix(trimmed, "postgres://") || strings.HasPrefix(trimmed, "postgresql://") {
		return driverPostgres, trimmed, nil
	}
	if strings.HasPrefix(trimmed, "mysql://") {
		target := strings.TrimPrefix(trimmed, "mysql://")
		if target == "" {
			return "", "", fmt.Errorf("mysql dsn is empty")
		}
		return driverMySQL, target, nil
	}
	if strings.HasPrefix(trimmed, "sqlite://") {
		parsed, err := url.Parse(trimmed)
		if err != nil {
			return "", "", fmt.Errorf("parse sqlite url: %w", err)
		}
		path := parsed.Host + parsed.Path
		if path == "" || path == "/" {
			path = defaultSQLite
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return driverSQLite, sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(trimmed)
	return driverSQLite, sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == sqliteMemory {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return filepath.Clean(path), nil
}
