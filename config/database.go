package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

var (
	db *gorm.DB
)

// GetDB returns the audit-trail database handle. Nil until
// ConnectAuditDatabaseWithRetry has succeeded.
func GetDB() *gorm.DB {
	return db
}

func SetDB(handle *gorm.DB) {
	db = handle
}

// ConnectAuditDatabaseWithRetry connects the audit database and sets the
// global handle. Call this from main() AFTER the HTTP server is listening;
// startup must not block waiting for the DB.
//
// Driver selection:
//   - AUDIT_DB_DRIVER=sqlite (default): AUDIT_DB_PATH (default review_audit.db)
//   - AUDIT_DB_DRIVER=mysql: DB_USER / DB_PASSWORD / DB_HOST / DB_PORT / DB_NAME
func ConnectAuditDatabaseWithRetry() {
	driver := strings.ToLower(StringFromEnv("AUDIT_DB_DRIVER", "sqlite"))

	var attempt int
	for {
		attempt++
		var err error
		switch driver {
		case "mysql":
			db, err = gorm.Open(mysql.Open(mysqlDSNFromEnv()), initConfig())
		default:
			db, err = gorm.Open(sqlite.Open(StringFromEnv("AUDIT_DB_PATH", "review_audit.db")), initConfig())
		}
		if err == nil {
			if sqlDB, derr := db.DB(); derr == nil && sqlDB != nil {
				maxOpen := IntFromEnv("DB_MAX_OPEN_CONNS", 10)
				maxIdle := IntFromEnv("DB_MAX_IDLE_CONNS", 5)
				if maxOpen > 0 {
					sqlDB.SetMaxOpenConns(maxOpen)
				}
				if maxIdle >= 0 {
					sqlDB.SetMaxIdleConns(maxIdle)
				}
				sqlDB.SetConnMaxLifetime(time.Duration(IntFromEnv("DB_CONN_MAX_LIFETIME_SECONDS", 300)) * time.Second)
			}
			if pluginErr := db.Use(otelgorm.NewPlugin()); pluginErr != nil {
				log.Printf("db connected but failed to install otelgorm plugin: %v", pluginErr)
			}
			log.Printf("connected to audit database (driver=%s attempt=%d)", driver, attempt)
			return
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect audit database (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}

func mysqlDSNFromEnv() string {
	dbHost := os.Getenv("DB_HOST")
	network := "tcp"
	address := fmt.Sprintf("%s:%s", dbHost, StringFromEnv("DB_PORT", "3306"))
	if strings.HasPrefix(dbHost, "/cloudsql/") {
		network = "unix"
		address = dbHost
	}
	return fmt.Sprintf("%s:%s@%s(%s)/%s?multiStatements=true&parseTime=true",
		os.Getenv("DB_USER"),
		os.Getenv("DB_PASSWORD"),
		network,
		address,
		os.Getenv("DB_NAME"),
	)
}

func initConfig() *gorm.Config {
	return &gorm.Config{
		Logger:         initLog(),
		NamingStrategy: initNamingStrategy(),
	}
}

func initLog() logger.Interface {
	newLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			Colorful:      false,
			LogLevel:      logger.Error,
			SlowThreshold: time.Second,
		},
	)
	return newLogger
}

func initNamingStrategy() *schema.NamingStrategy {
	return &schema.NamingStrategy{
		SingularTable: false,
		TablePrefix:   "",
	}
}
