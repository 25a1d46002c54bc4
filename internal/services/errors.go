package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/hearthly/hearth/pkg/errors"
)

const (
	pgUniqueViolation   = "23505"
	mysqlDuplicateEntry = 1062
)

// uniqueViolation reports whether err is a unique index violation on any supported
// driver. Foreign key and not-null violations are not.
func uniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		return pgErr.Code == pgUniqueViolation
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr != nil {
		return myErr.Number == mysqlDuplicateEntry
	}

	// sqlite: "UNIQUE constraint failed: family_members.name"
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// memberWriteError maps a failed family member write. A taken name becomes
// ErrMemberNameTaken and AppErrors pass through unchanged.
func memberWriteError(op string, err error) error {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return err
	case uniqueViolation(err):
		return ErrMemberNameTaken
	}
	return fmt.Errorf("family service: %s: %w", op, err)
}
