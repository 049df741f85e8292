package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirenhq/siren/pkg/models"
)

const alertColumns = `id, title, message, severity, channels, targeting, status, created_by,
	template_id, template_used_at, incident_id,
	stats_total, stats_sent, stats_failed, stats_pending,
	created_at, updated_at, sent_at, cancelled_at`

// CreateAlert inserts a new alert and sets its ID.
func (db *DB) CreateAlert(ctx context.Context, alert *models.Alert) error {
	channels, err := encodeJSON(alert.Channels)
	if err != nil {
		return err
	}
	targeting, err := encodeJSON(alert.Targeting)
	if err != nil {
		return err
	}
	var templateID sql.NullInt64
	var templateUsedAt sql.NullString
	if alert.FromTemplate != nil {
		templateID = sql.NullInt64{Int64: int64(alert.FromTemplate.TemplateID), Valid: true}
		templateUsedAt = formatNullTime(&alert.FromTemplate.UsedAt)
	}
	var incidentID sql.NullInt64
	if alert.FromIncident != nil {
		incidentID = sql.NullInt64{Int64: int64(*alert.FromIncident), Valid: true}
	}

	res, err := db.writeDB.ExecContext(ctx, `
		INSERT INTO alerts (title, message, severity, channels, targeting, status, created_by,
			template_id, template_used_at, incident_id,
			stats_total, stats_sent, stats_failed, stats_pending,
			created_at, updated_at, sent_at, cancelled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		alert.Title, alert.Message, string(alert.Severity), channels, targeting, string(alert.Status), int64(alert.CreatedBy),
		templateID, templateUsedAt, incidentID,
		alert.DeliveryStats.Total, alert.DeliveryStats.Sent, alert.DeliveryStats.Failed, alert.DeliveryStats.Pending,
		formatTime(alert.CreatedAt), formatTime(alert.UpdatedAt), formatNullTime(alert.SentAt), formatNullTime(alert.CancelledAt),
	)
	if err != nil {
		db.log.Error("failed to insert alert", "error", err, "title", alert.Title)
		return fmt.Errorf("failed to create alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read alert id: %w", err)
	}
	alert.ID = models.AlertID(id)
	return nil
}

// GetAlert returns an alert with its acknowledgments.
func (db *DB) GetAlert(ctx context.Context, id models.AlertID) (*models.Alert, error) {
	row := db.readDB.QueryRowContext(ctx, "SELECT "+alertColumns+" FROM alerts WHERE id = ?", int64(id))
	alert, err := scanAlert(row)
	if err != nil {
		return nil, handleNotFoundError(err, fmt.Sprintf("getting alert id %d", id))
	}
	acks, err := db.acknowledgmentsFor(ctx, []models.AlertID{id})
	if err != nil {
		return nil, err
	}
	alert.Acknowledgments = acks[id]
	if alert.Acknowledgments == nil {
		alert.Acknowledgments = []models.Acknowledgment{}
	}
	return alert, nil
}

// ListAlerts returns alerts matching filter, newest first. A non-positive limit
// returns every match.
func (db *DB) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]*models.Alert, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Severity != "" {
		where = append(where, "severity = ?")
		args = append(args, string(filter.Severity))
	}
	if filter.CreatedBy != 0 {
		where = append(where, "created_by = ?")
		args = append(args, int64(filter.CreatedBy))
	}
	if filter.Since != nil {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	if filter.Until != nil {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(*filter.Until))
	}

	query := "SELECT " + alertColumns + " FROM alerts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := db.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var (
		alerts []*models.Alert
		ids    []models.AlertID
	)
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, alert)
		ids = append(ids, alert.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	acks, err := db.acknowledgmentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, alert := range alerts {
		alert.Acknowledgments = acks[alert.ID]
		if alert.Acknowledgments == nil {
			alert.Acknowledgments = []models.Acknowledgment{}
		}
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}
	return alerts, nil
}

// UpdateAlert overwrites the mutable columns of an alert.
func (db *DB) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	channels, err := encodeJSON(alert.Channels)
	if err != nil {
		return err
	}
	targeting, err := encodeJSON(alert.Targeting)
	if err != nil {
		return err
	}
	res, err := db.writeDB.ExecContext(ctx, `
		UPDATE alerts SET title = ?, message = ?, severity = ?, channels = ?, targeting = ?, status = ?,
			stats_total = ?, stats_sent = ?, stats_failed = ?, stats_pending = ?,
			updated_at = ?, sent_at = ?, cancelled_at = ?
		WHERE id = ?`,
		alert.Title, alert.Message, string(alert.Severity), channels, targeting, string(alert.Status),
		alert.DeliveryStats.Total, alert.DeliveryStats.Sent, alert.DeliveryStats.Failed, alert.DeliveryStats.Pending,
		formatTime(alert.UpdatedAt), formatNullTime(alert.SentAt), formatNullTime(alert.CancelledAt),
		int64(alert.ID),
	)
	if err != nil {
		db.log.Error("failed to update alert", "error", err, "alert_id", alert.ID)
		return fmt.Errorf("failed to update alert: %w", err)
	}
	return requireAffected(res)
}

// RecordDelivery stores final delivery stats. The status only moves to failed while
// the alert is still sent, so a concurrent cancellation is never overwritten.
func (db *DB) RecordDelivery(ctx context.Context, id models.AlertID, stats models.DeliveryStats, markFailed bool, at time.Time) (models.AlertStatus, error) {
	var status string
	err := db.writeDB.QueryRowContext(ctx, `
		UPDATE alerts SET stats_total = ?, stats_sent = ?, stats_failed = ?, stats_pending = ?,
			status = CASE WHEN ? = 1 AND status = 'sent' THEN 'failed' ELSE status END,
			updated_at = ?
		WHERE id = ?
		RETURNING status`,
		stats.Total, stats.Sent, stats.Failed, stats.Pending,
		boolToInt(markFailed), formatTime(at), int64(id),
	).Scan(&status)
	if err != nil {
		return "", handleNotFoundError(err, fmt.Sprintf("recording delivery for alert %d", id))
	}
	return models.AlertStatus(status), nil
}

// CancelAlert cancels an alert only while it is sent.
func (db *DB) CancelAlert(ctx context.Context, id models.AlertID, at time.Time) error {
	ts := formatTime(at)
	res, err := db.writeDB.ExecContext(ctx,
		"UPDATE alerts SET status = 'cancelled', cancelled_at = ?, updated_at = ? WHERE id = ? AND status = 'sent'",
		ts, ts, int64(id))
	if err != nil {
		return fmt.Errorf("failed to cancel alert: %w", err)
	}
	return db.conditionalResult(ctx, res, "alerts", int64(id))
}

// DeleteAlert removes an alert and its acknowledgments.
func (db *DB) DeleteAlert(ctx context.Context, id models.AlertID) error {
	res, err := db.writeDB.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", int64(id))
	if err != nil {
		return fmt.Errorf("failed to delete alert: %w", err)
	}
	return requireAffected(res)
}

// AddAcknowledgment inserts an acknowledgment while the alert is sent. The
// UNIQUE(alert_id, user_id) constraint rejects duplicates with models.ErrConflict.
func (db *DB) AddAcknowledgment(ctx context.Context, id models.AlertID, ack models.Acknowledgment) error {
	res, err := db.writeDB.ExecContext(ctx, `
		INSERT INTO alert_acknowledgments (alert_id, user_id, notes, acknowledged_at)
		SELECT ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM alerts WHERE id = ? AND status = 'sent')`,
		int64(id), int64(ack.UserID), ack.Notes, formatTime(ack.Timestamp), int64(id))
	if err != nil {
		if isUniqueConstraintError(err, "alert_acknowledgments") {
			return models.ErrConflict
		}
		return fmt.Errorf("failed to add acknowledgment: %w", err)
	}
	return db.conditionalResult(ctx, res, "alerts", int64(id))
}

// conditionalResult distinguishes a missing row from a failed precondition when a
// conditional write affected nothing.
func (db *DB) conditionalResult(ctx context.Context, res sql.Result, table string, id int64) error {
	err := requireAffected(res)
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	found, existsErr := db.exists(ctx, table, id)
	if existsErr != nil {
		return existsErr
	}
	if found {
		return models.ErrPrecondition
	}
	return models.ErrNotFound
}

// acknowledgmentsFor loads acknowledgments for the given alerts in insertion order.
func (db *DB) acknowledgmentsFor(ctx context.Context, ids []models.AlertID) (map[models.AlertID][]models.Acknowledgment, error) {
	out := make(map[models.AlertID][]models.Acknowledgment, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	rows, err := db.readDB.QueryContext(ctx,
		"SELECT alert_id, user_id, notes, acknowledged_at FROM alert_acknowledgments WHERE alert_id IN ("+placeholders(len(ids))+") ORDER BY id",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list acknowledgments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			alertID, userID int64
			notes, ackedAt  string
		)
		if err := rows.Scan(&alertID, &userID, &notes, &ackedAt); err != nil {
			return nil, fmt.Errorf("failed to scan acknowledgment: %w", err)
		}
		ts, err := parseTime(ackedAt)
		if err != nil {
			return nil, err
		}
		out[models.AlertID(alertID)] = append(out[models.AlertID(alertID)], models.Acknowledgment{
			UserID:    models.UserID(userID),
			Timestamp: ts,
			Notes:     notes,
		})
	}
	return out, rows.Err()
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var (
		a                                   models.Alert
		id, createdBy                       int64
		severity, status                    string
		channels, targeting                 string
		templateID, incidentID              sql.NullInt64
		templateUsedAt, sentAt, cancelledAt sql.NullString
		createdAt, updatedAt                string
	)
	if err := row.Scan(&id, &a.Title, &a.Message, &severity, &channels, &targeting, &status, &createdBy,
		&templateID, &templateUsedAt, &incidentID,
		&a.DeliveryStats.Total, &a.DeliveryStats.Sent, &a.DeliveryStats.Failed, &a.DeliveryStats.Pending,
		&createdAt, &updatedAt, &sentAt, &cancelledAt); err != nil {
		return nil, err
	}
	a.ID = models.AlertID(id)
	a.CreatedBy = models.UserID(createdBy)
	a.Severity = models.AlertSeverity(severity)
	a.Status = models.AlertStatus(status)
	if err := decodeJSON(channels, &a.Channels); err != nil {
		return nil, err
	}
	if err := decodeJSON(targeting, &a.Targeting); err != nil {
		return nil, err
	}
	var err error
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if a.SentAt, err = parseNullTime(sentAt); err != nil {
		return nil, err
	}
	if a.CancelledAt, err = parseNullTime(cancelledAt); err != nil {
		return nil, err
	}
	if templateID.Valid {
		usedAt, err := parseNullTime(templateUsedAt)
		if err != nil {
			return nil, err
		}
		usage := &models.TemplateUsage{TemplateID: models.TemplateID(templateID.Int64)}
		if usedAt != nil {
			usage.UsedAt = *usedAt
		}
		a.FromTemplate = usage
	}
	if incidentID.Valid {
		iid := models.IncidentID(incidentID.Int64)
		a.FromIncident = &iid
	}
	return &a, nil
}
