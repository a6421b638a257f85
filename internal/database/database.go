package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fitlog/backend/internal/chat"
	"github.com/fitlog/backend/internal/config"
	"github.com/fitlog/backend/internal/diary"
	"github.com/fitlog/backend/internal/exercises"
	"github.com/fitlog/backend/internal/foods"
	"github.com/fitlog/backend/internal/programs"
	"github.com/fitlog/backend/internal/social"
	"github.com/fitlog/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var (
	errMissingPath = errors.New("database path is required")
	errMissingDSN  = errors.New("database dsn is required")
)

// Config selects the database backend.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Models lists every table owned by the API.
func Models() []interface{} {
	return []interface{}{
		&users.User{},
		&users.Identity{},
		&exercises.Exercise{},
		&programs.Program{},
		&programs.ProgramExercise{},
		&diary.Entry{},
		&foods.Product{},
		&social.FriendRequest{},
		&social.Friendship{},
		&chat.Chat{},
		&chat.Message{},
		&migrationRecord{},
	}
}

// Open connects to the configured backend, migrates the schema and seeds the exercise catalog.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if driverName(cfg) == config.DriverSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(ctx, db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", driverName(cfg)))
	return db, nil
}

// Migrate creates the schema, applies named data migrations and seeds the catalog.
func Migrate(ctx context.Context, db *gorm.DB, logger *zap.Logger) error {
	if err := db.WithContext(ctx).AutoMigrate(Models()...); err != nil {
		return err
	}
	if err := applyMigrations(db.WithContext(ctx), logger); err != nil {
		return err
	}
	seeded, err := exercises.SeedCatalog(ctx, db, time.Now())
	if err != nil {
		return fmt.Errorf("seed exercise catalog: %w", err)
	}
	if seeded > 0 && logger != nil {
		logger.Info("exercise catalog seeded", zap.Int64("inserted", seeded))
	}
	return nil
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch driverName(cfg) {
	case config.DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errMissingPath
		}
		return sqlite.Open(cfg.Path), nil
	case config.DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errMissingDSN
		}
		return postgres.Open(cfg.DSN), nil
	case config.DriverMySQL:
		dsn, err := mysqlDSN(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// mysqlDSN forces time parsing so DATETIME columns scan into time.Time.
func mysqlDSN(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", errMissingDSN
	}
	parsed, err := mysqldriver.ParseDSN(raw)
	if err != nil {
		return "", fmt.Errorf("invalid mysql dsn: %w", err)
	}
	parsed.ParseTime = true
	if parsed.Loc == nil {
		parsed.Loc = time.UTC
	}
	return parsed.FormatDSN(), nil
}

func driverName(cfg Config) string {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		return config.DriverSQLite
	}
	return driver
}
