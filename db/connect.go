package db

import (
	"fmt"
	"strings"
	"time"

	"stresstest-server/confs"
	"stresstest-server/entities"
	"stresstest-server/logs"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the configured database and migrates the schema.
// The "memory" driver (or an empty one) returns a nil Database: callers fall
// back to the in-memory repositories.
func Connect(cfg confs.DatabaseConfig) (Database, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	if dialector == nil {
		logs.Logger.Info("no database driver configured, using in-memory store")
		return nil, nil
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:      logger.Default.LogMode(gormLogLevel()),
		PrepareStmt: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)
	if cfg.Driver == "sqlite" {
		// sqlite serializes writers anyway
		sqlDB.SetMaxOpenConns(1)
	}

	logs.Logger.Infof("database connection established (driver=%s)", cfg.Driver)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return &GormDatabase{DB: db}, nil
}

// Migrate creates or updates every table the server owns.
func Migrate(db *gorm.DB) error {
	logs.Logger.Info("running database migrations...")
	if err := db.AutoMigrate(&entities.DeviceTest{}, &entities.BatteryReading{}, &entities.User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	logs.Logger.Info("database migrations completed")
	return nil
}

func dialectorFor(cfg confs.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "memory":
		return nil, nil
	case "postgres":
		dsn, err := postgresDSN(cfg)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case "mysql":
		// user:pass@tcp(127.0.0.1:3306)/stresstest?parseTime=true&charset=utf8mb4&loc=Local
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database.dsn is required for mysql")
		}
		return mysql.Open(cfg.DSN), nil
	case "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = "stresstest.db"
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

func postgresDSN(cfg confs.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.URL != "" {
		dsn := cfg.URL
		// hosted databases expect TLS unless told otherwise
		if !strings.Contains(dsn, "sslmode=") {
			if strings.Contains(dsn, "?") {
				dsn += "&sslmode=require"
			} else {
				dsn += "?sslmode=require"
			}
		}
		logs.Logger.Info("connecting to database using DB_URL...")
		return dsn, nil
	}

	if cfg.Host == "" || cfg.Port == "" || cfg.User == "" || cfg.Password == "" || cfg.Name == "" {
		return "", fmt.Errorf("missing required database configuration: DB_URL or (DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME)")
	}

	sslMode := "require"
	if cfg.Host == "localhost" || cfg.Host == "127.0.0.1" {
		sslMode = "disable"
	}
	logs.Logger.Infof("connecting to database using individual parameters (sslmode=%s)...", sslMode)
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.Name, cfg.Port, sslMode), nil
}

func gormLogLevel() logger.LogLevel {
	if logs.Logger != nil && logs.Logger.IsLevelEnabled(logrus.DebugLevel) {
		return logger.Info
	}
	return logger.Warn
}
