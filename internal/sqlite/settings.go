package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/sirenhq/siren/pkg/models"
)

const settingColumns = `key, value, value_type, category, description, is_sensitive, updated_at`

// GetSetting retrieves a setting value from the database.
func (db *DB) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := db.readDB.QueryRowContext(ctx, "SELECT value FROM system_settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		return "", handleNotFoundError(err, fmt.Sprintf("failed to get setting %s", key))
	}
	return value, nil
}

// GetSettingWithDefault retrieves a setting value or returns the default if not found.
func (db *DB) GetSettingWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	return value
}

// GetBoolSetting retrieves a boolean setting value.
func (db *DB) GetBoolSetting(ctx context.Context, key string, defaultValue bool) bool {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	boolVal, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return boolVal
}

// GetIntSetting retrieves an integer setting value.
func (db *DB) GetIntSetting(ctx context.Context, key string, defaultValue int) int {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intVal
}

// GetDurationSetting retrieves a duration setting value.
func (db *DB) GetDurationSetting(ctx context.Context, key string, defaultValue time.Duration) time.Duration {
	value, err := db.GetSetting(ctx, key)
	if err != nil {
		return defaultValue
	}
	durationVal, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return durationVal
}

// ListSettings retrieves all settings ordered by category and key.
func (db *DB) ListSettings(ctx context.Context) ([]*models.Setting, error) {
	return db.querySettings(ctx, "SELECT "+settingColumns+" FROM system_settings ORDER BY category, key")
}

// ListSettingsByCategory retrieves settings for a specific category.
func (db *DB) ListSettingsByCategory(ctx context.Context, category string) ([]*models.Setting, error) {
	settings, err := db.querySettings(ctx,
		"SELECT "+settingColumns+" FROM system_settings WHERE category = ? ORDER BY key", category)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings for category %s: %w", category, err)
	}
	return settings, nil
}

// UpsertSetting inserts or updates a setting.
func (db *DB) UpsertSetting(ctx context.Context, setting *models.Setting) error {
	if setting.UpdatedAt.IsZero() {
		setting.UpdatedAt = time.Now().UTC()
	}
	_, err := db.writeDB.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, value_type, category, description, is_sensitive, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			value_type = excluded.value_type,
			category = excluded.category,
			description = excluded.description,
			is_sensitive = excluded.is_sensitive,
			updated_at = excluded.updated_at`,
		setting.Key, setting.Value, setting.ValueType, setting.Category,
		sql.NullString{String: setting.Description, Valid: setting.Description != ""},
		boolToInt(setting.IsSensitive), formatTime(setting.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
	}
	return nil
}

// DeleteSetting deletes a setting.
func (db *DB) DeleteSetting(ctx context.Context, key string) error {
	res, err := db.writeDB.ExecContext(ctx, "DELETE FROM system_settings WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return requireAffected(res)
}

func (db *DB) querySettings(ctx context.Context, query string, args ...any) ([]*models.Setting, error) {
	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	settings := []*models.Setting{}
	for rows.Next() {
		var (
			s           models.Setting
			description sql.NullString
			isSensitive int64
			updatedAt   string
		)
		if err := rows.Scan(&s.Key, &s.Value, &s.ValueType, &s.Category, &description, &isSensitive, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan setting: %w", err)
		}
		s.Description = description.String
		s.IsSensitive = isSensitive != 0
		if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
			return nil, err
		}
		settings = append(settings, &s)
	}
	return settings, rows.Err()
}
