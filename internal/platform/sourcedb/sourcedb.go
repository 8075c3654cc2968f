package sourcedb

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	pkgerrors "github.com/yungbote/neurobridge-graphload/internal/pkg/errors"
	"github.com/yungbote/neurobridge-graphload/internal/platform/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
	MaxOpenConns   int
	// Silent drops gorm's own statement logging (tests).
	Silent bool
}

// Open connects to the relational source and pings it once.
func Open(ctx context.Context, cfg Config, logg *logger.Logger) (*gorm.DB, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = DriverPostgres
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, &pkgerrors.ConnectionError{Target: "source", Err: fmt.Errorf("empty dsn")}
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres, "postgresql", "pgx":
		dialector = postgres.Open(cfg.DSN)
	case DriverSQLite, "sqlite3":
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, &pkgerrors.ConnectionError{Target: "source", Err: fmt.Errorf("unsupported driver %q", cfg.Driver)}
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	if cfg.Silent {
		gormLog = gormLogger.Default.LogMode(gormLogger.Silent)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      gormLog,
		PrepareStmt: false,
	})
	if err != nil {
		return nil, &pkgerrors.ConnectionError{Target: "source", Err: err}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, &pkgerrors.ConnectionError{Target: "source", Err: err}
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, &pkgerrors.ConnectionError{Target: "source", Err: err}
	}

	if logg != nil {
		logg.Info("source connected", "driver", driver, "dsn", cfg.DSN)
	}
	return db, nil
}

// Close releases the pooled connections behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
