package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), serverGormConfig())
}

// buildPostgresDSN renders a key/value DSN. Sessions run in UTC so updated_at
// values compare equal across household devices.
func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" {
		return "", errors.New("postgres configuration requires a user")
	}

	params := []string{
		"host=" + valueOr(cfg.Host, "localhost"),
		fmt.Sprintf("port=%d", portOr(cfg.Port, 5432)),
		"user=" + cfg.User,
		"dbname=" + valueOr(cfg.Name, DefaultDatabaseName),
	}
	if cfg.Password != "" {
		params = append(params, "password="+cfg.Password)
	}

	options := mergeOptions(map[string]string{
		"sslmode":          "disable",
		"application_name": "hearth-server",
		"TimeZone":         "UTC",
	}, cfg.Options)
	params = append(params, joinOptions(options)...)
	return strings.Join(params, " "), nil
}
