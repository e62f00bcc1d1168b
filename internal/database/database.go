package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tariel-x/wellpush/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Initialize opens the database and migrates the schema. Timestamps written
// by gorm are always UTC so that the reminder window comparisons hold on
// every driver.
func Initialize(driver, dsn string, logger *slog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(dsn))
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	cfg := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  newGormLogger(logger),
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver != DriverPostgres {
		// sqlite allows one writer; a single connection keeps concurrent
		// device fan-out from tripping over "database is locked".
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.CheckIn{},
		&models.DeviceToken{},
		&models.NotificationPreference{},
		&models.NotificationLog{},
	); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// MemoryDSN returns a DSN for a private in-memory sqlite database.
func MemoryDSN(name string) string {
	return "file:" + name + "?mode=memory&cache=shared"
}

func sqliteDSN(dsn string) string {
	if dsn == "" {
		dsn = "wellpush.db"
	}
	params := []string{"_pragma=foreign_keys(1)", "_pragma=busy_timeout(5000)", "_time_format=sqlite"}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

func newGormLogger(logger *slog.Logger) gormlogger.Interface {
	if logger == nil {
		return gormlogger.Discard
	}
	return gormlogger.New(
		slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
