package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirenhq/siren/pkg/models"
)

const incidentColumns = `id, title, description, location, severity, status, reported_by,
	reported_at, updated_at, responses, status_updates, related_alert_id`

// CreateIncident inserts a new incident and sets its ID.
func (db *DB) CreateIncident(ctx context.Context, incident *models.Incident) error {
	responses, statusUpdates, err := encodeIncidentLogs(incident)
	if err != nil {
		return err
	}
	res, err := db.writeDB.ExecContext(ctx, `
		INSERT INTO incidents (title, description, location, severity, status, reported_by,
			reported_at, updated_at, responses, status_updates, related_alert_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		incident.Title, incident.Description, incident.Location, string(incident.Severity), string(incident.Status),
		int64(incident.ReportedBy), formatTime(incident.ReportedAt), formatTime(incident.UpdatedAt),
		responses, statusUpdates, nullAlertID(incident.RelatedAlertID),
	)
	if err != nil {
		db.log.Error("failed to insert incident", "error", err, "title", incident.Title)
		return fmt.Errorf("failed to create incident: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read incident id: %w", err)
	}
	incident.ID = models.IncidentID(id)
	return nil
}

// GetIncident returns a single incident.
func (db *DB) GetIncident(ctx context.Context, id models.IncidentID) (*models.Incident, error) {
	row := db.readDB.QueryRowContext(ctx, "SELECT "+incidentColumns+" FROM incidents WHERE id = ?", int64(id))
	incident, err := scanIncident(row)
	if err != nil {
		return nil, handleNotFoundError(err, fmt.Sprintf("getting incident id %d", id))
	}
	return incident, nil
}

// ListIncidents returns incidents newest first.
func (db *DB) ListIncidents(ctx context.Context, filter models.IncidentFilter) ([]*models.Incident, error) {
	query := "SELECT " + incidentColumns + " FROM incidents"
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := []*models.Incident{}
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

// UpdateIncident overwrites an incident including its logs and alert link.
func (db *DB) UpdateIncident(ctx context.Context, incident *models.Incident) error {
	responses, statusUpdates, err := encodeIncidentLogs(incident)
	if err != nil {
		return err
	}
	res, err := db.writeDB.ExecContext(ctx, `
		UPDATE incidents SET title = ?, description = ?, location = ?, severity = ?, status = ?,
			updated_at = ?, responses = ?, status_updates = ?, related_alert_id = ?
		WHERE id = ?`,
		incident.Title, incident.Description, incident.Location, string(incident.Severity), string(incident.Status),
		formatTime(incident.UpdatedAt), responses, statusUpdates, nullAlertID(incident.RelatedAlertID),
		int64(incident.ID),
	)
	if err != nil {
		db.log.Error("failed to update incident", "error", err, "incident_id", incident.ID)
		return fmt.Errorf("failed to update incident: %w", err)
	}
	return requireAffected(res)
}

// DeleteIncident removes an incident.
func (db *DB) DeleteIncident(ctx context.Context, id models.IncidentID) error {
	res, err := db.writeDB.ExecContext(ctx, "DELETE FROM incidents WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete incident: %w", err)
	}
	return requireAffected(res)
}

func encodeIncidentLogs(incident *models.Incident) (string, string, error) {
	responses := incident.Responses
	if responses == nil {
		responses = []models.IncidentResponse{}
	}
	updates := incident.StatusUpdates
	if updates == nil {
		updates = []models.IncidentStatusUpdate{}
	}
	r, err := encodeJSON(responses)
	if err != nil {
		return "", "", err
	}
	u, err := encodeJSON(updates)
	if err != nil {
		return "", "", err
	}
	return r, u, nil
}

func nullAlertID(id *models.AlertID) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*id), Valid: true}
}

func scanIncident(row rowScanner) (*models.Incident, error) {
	var (
		i                     models.Incident
		id, reportedBy        int64
		severity, status      string
		reportedAt, updatedAt string
		responses, updates    string
		relatedAlertID        sql.NullInt64
	)
	if err := row.Scan(&id, &i.Title, &i.Description, &i.Location, &severity, &status, &reportedBy,
		&reportedAt, &updatedAt, &responses, &updates, &relatedAlertID); err != nil {
		return nil, err
	}
	i.ID = models.IncidentID(id)
	i.ReportedBy = models.UserID(reportedBy)
	i.Severity = models.AlertSeverity(severity)
	i.Status = models.IncidentStatus(status)
	var err error
	if i.ReportedAt, err = parseTime(reportedAt); err != nil {
		return nil, err
	}
	if i.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	i.Responses = []models.IncidentResponse{}
	if err := decodeJSON(responses, &i.Responses); err != nil {
		return nil, err
	}
	i.StatusUpdates = []models.IncidentStatusUpdate{}
	if err := decodeJSON(updates, &i.StatusUpdates); err != nil {
		return nil, err
	}
	if relatedAlertID.Valid {
		aid := models.AlertID(relatedAlertID.Int64)
		i.RelatedAlertID = &aid
	}
	return &i, nil
}
