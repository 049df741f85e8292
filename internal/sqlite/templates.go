package sqlite

import (
	"context"
	"fmt"

	"github.com/sirenhq/siren/pkg/models"
)

const templateColumns = `id, name, category, type, title_pattern, content_pattern, variables,
	default_channels, default_severity, is_active, created_by, created_at, updated_at`

// CreateTemplate inserts a new template and sets its ID.
func (db *DB) CreateTemplate(ctx context.Context, tmpl *models.NotificationTemplate) error {
	variables, channels, err := encodeTemplateLists(tmpl)
	if err != nil {
		return err
	}
	res, err := db.writeDB.ExecContext(ctx, `
		INSERT INTO notification_templates (name, category, type, title_pattern, content_pattern, variables,
			default_channels, default_severity, is_active, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.Name, tmpl.Category, tmpl.Type, tmpl.TitlePattern, tmpl.ContentPattern, variables,
		channels, string(tmpl.DefaultSeverity), boolToInt(tmpl.IsActive), int64(tmpl.CreatedBy),
		formatTime(tmpl.CreatedAt), formatTime(tmpl.UpdatedAt),
	)
	if err != nil {
		db.log.Error("failed to insert template", "error", err, "name", tmpl.Name)
		return fmt.Errorf("failed to create template: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read template id: %w", err)
	}
	tmpl.ID = models.TemplateID(id)
	return nil
}

// GetTemplate returns a single template.
func (db *DB) GetTemplate(ctx context.Context, id models.TemplateID) (*models.NotificationTemplate, error) {
	row := db.readDB.QueryRowContext(ctx, "SELECT "+templateColumns+" FROM notification_templates WHERE id = ?", int64(id))
	tmpl, err := scanTemplate(row)
	if err != nil {
		return nil, handleNotFoundError(err, fmt.Sprintf("getting template id %d", id))
	}
	return tmpl, nil
}

// ListTemplates returns templates ordered by category and name.
func (db *DB) ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]*models.NotificationTemplate, error) {
	query := "SELECT " + templateColumns + " FROM notification_templates WHERE 1 = 1"
	var args []any
	if filter.Category != "" {
		query += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.ActiveOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY category, name, id"

	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	templates := []*models.NotificationTemplate{}
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

// UpdateTemplate overwrites a template.
func (db *DB) UpdateTemplate(ctx context.Context, tmpl *models.NotificationTemplate) error {
	variables, channels, err := encodeTemplateLists(tmpl)
	if err != nil {
		return err
	}
	res, err := db.writeDB.ExecContext(ctx, `
		UPDATE notification_templates SET name = ?, category = ?, type = ?, title_pattern = ?, content_pattern = ?,
			variables = ?, default_channels = ?, default_severity = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		tmpl.Name, tmpl.Category, tmpl.Type, tmpl.TitlePattern, tmpl.ContentPattern,
		variables, channels, string(tmpl.DefaultSeverity), boolToInt(tmpl.IsActive), formatTime(tmpl.UpdatedAt),
		int64(tmpl.ID),
	)
	if err != nil {
		db.log.Error("failed to update template", "error", err, "template_id", tmpl.ID)
		return fmt.Errorf("failed to update template: %w", err)
	}
	return requireAffected(res)
}

// DeleteTemplate removes a template.
func (db *DB) DeleteTemplate(ctx context.Context, id models.TemplateID) error {
	res, err := db.writeDB.ExecContext(ctx, "DELETE FROM notification_templates WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return requireAffected(res)
}

func encodeTemplateLists(tmpl *models.NotificationTemplate) (string, string, error) {
	variables := tmpl.Variables
	if variables == nil {
		variables = []string{}
	}
	channels := tmpl.DefaultChannels
	if channels == nil {
		channels = []models.Channel{}
	}
	v, err := encodeJSON(variables)
	if err != nil {
		return "", "", err
	}
	c, err := encodeJSON(channels)
	if err != nil {
		return "", "", err
	}
	return v, c, nil
}

func scanTemplate(row rowScanner) (*models.NotificationTemplate, error) {
	var (
		t                    models.NotificationTemplate
		id, createdBy        int64
		isActive             int64
		variables, channels  string
		severity             string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &t.Name, &t.Category, &t.Type, &t.TitlePattern, &t.ContentPattern, &variables,
		&channels, &severity, &isActive, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.ID = models.TemplateID(id)
	t.CreatedBy = models.UserID(createdBy)
	t.DefaultSeverity = models.AlertSeverity(severity)
	t.IsActive = isActive != 0
	t.Variables = []string{}
	if err := decodeJSON(variables, &t.Variables); err != nil {
		return nil, err
	}
	t.DefaultChannels = []models.Channel{}
	if err := decodeJSON(channels, &t.DefaultChannels); err != nil {
		return nil, err
	}
	var err error
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}
