package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.Open(dsn), serverGormConfig())
}

// buildMySQLDSN renders a go-sql-driver DSN. Times are parsed in UTC to match
// the millisecond timestamps clients sync against.
func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" {
		return "", errors.New("mysql configuration requires a user")
	}

	user := cfg.User
	if cfg.Password != "" {
		user += ":" + cfg.Password
	}

	options := mergeOptions(map[string]string{
		"charset":   "utf8mb4",
		"parseTime": "True",
		"loc":       "UTC",
	}, cfg.Options)

	return fmt.Sprintf("%s@tcp(%s:%d)/%s?%s",
		user,
		valueOr(cfg.Host, "127.0.0.1"),
		portOr(cfg.Port, 3306),
		valueOr(cfg.Name, DefaultDatabaseName),
		strings.Join(joinOptions(options), "&"),
	), nil
}
