package mysql

import (
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Timestamps are stored at millisecond precision, the resolution the engine
// truncates to.
const datetimePrecision = 3

// Open creates a GORM *DB backed by MySQL with a connection pool. parseTime
// is forced on so DATETIME columns scan into time.Time.
func Open(dsn string, maxOpen, maxIdle int, maxLife time.Duration) (*gorm.DB, error) {
	prec := datetimePrecision
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                      withParseTime(dsn),
		DefaultDatetimePrecision: &prec,
	}), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	sqlDB.SetConnMaxLifetime(maxLife)

	return db, nil
}

func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true&loc=UTC"
	}
	return dsn + "?parseTime=true&loc=UTC"
}
