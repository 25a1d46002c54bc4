package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hearthly/hearth/internal/models"
)

// HouseholdIDSetting stores the identifier embedded in issued family tokens.
const HouseholdIDSetting = "household.id"

// GetSystemSetting retrieves a system setting by key. Returns an empty string when not found.
func GetSystemSetting(ctx context.Context, db *gorm.DB, key string) (string, error) {
	if db == nil {
		return "", fmt.Errorf("system settings: db is nil")
	}

	var setting models.SystemSetting
	err := db.WithContext(ctx).Take(&setting, "setting_key = ?", key).Error
	if err == nil {
		return setting.Value, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if strings.Contains(err.Error(), "no such table") {
		return "", nil
	}
	return "", fmt.Errorf("system settings: get %q: %w", key, err)
}

// UpsertSystemSetting stores or updates a system setting value.
func UpsertSystemSetting(ctx context.Context, db *gorm.DB, key, value string) error {
	if db == nil {
		return fmt.Errorf("system settings: db is nil")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("system settings: key is required")
	}

	record := models.SystemSetting{
		Key:   key,
		Value: value,
	}

	if err := db.WithContext(ctx).
		Where("setting_key = ?", key).
		Assign(map[string]any{"value": value}).
		FirstOrCreate(&record).Error; err != nil {
		return fmt.Errorf("system settings: upsert %q: %w", key, err)
	}

	return nil
}

// EnsureHouseholdID returns the stored household identifier, generating one when absent.
func EnsureHouseholdID(ctx context.Context, db *gorm.DB) (string, error) {
	current, err := GetSystemSetting(ctx, db, HouseholdIDSetting)
	if err != nil {
		return "", err
	}
	if current = strings.TrimSpace(current); current != "" {
		return current, nil
	}

	id := uuid.NewString()
	if err := UpsertSystemSetting(ctx, db, HouseholdIDSetting, id); err != nil {
		return "", err
	}
	return id, nil
}

// JWTSecretSetting persists a generated token secret across restarts.
const JWTSecretSetting = "auth.jwt.secret"

// EnsureJWTSecret returns the secret tokens are signed with. A configured secret wins.
// A generated candidate is replaced by one stored earlier, or stored when none exists.
func EnsureJWTSecret(ctx context.Context, db *gorm.DB, candidate string, generated bool) (string, error) {
	candidate = strings.TrimSpace(candidate)
	if !generated {
		if candidate == "" {
			return "", errors.New("system settings: jwt secret is empty")
		}
		return candidate, nil
	}

	stored, err := GetSystemSetting(ctx, db, JWTSecretSetting)
	if err != nil {
		return "", err
	}
	if stored = strings.TrimSpace(stored); stored != "" {
		return stored, nil
	}
	if err := UpsertSystemSetting(ctx, db, JWTSecretSetting, candidate); err != nil {
		return "", err
	}
	return candidate, nil
}
