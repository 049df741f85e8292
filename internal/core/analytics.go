package core

import (
	"context"
	"math"

	"github.com/sirenhq/siren/pkg/models"
)

// GetAnalytics aggregates delivery and acknowledgment figures over every alert
// matching filter. The success rate is sent notifications over total recipients as
// a percentage rounded to two decimals, and zero when nobody was targeted.
func (s *Service) GetAnalytics(ctx context.Context, filter models.AlertFilter) (*models.AlertAnalytics, error) {
	// Analytics always cover the whole matching collection.
	filter.Limit = 0
	alerts, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, persistenceError("list alerts", err)
	}
	return summarizeAlerts(alerts), nil
}

func summarizeAlerts(alerts []*models.Alert) *models.AlertAnalytics {
	out := &models.AlertAnalytics{
		TotalAlerts: len(alerts),
		ByStatus:    make(map[models.AlertStatus]int, len(models.AllAlertStatuses)),
		BySeverity:  make(map[models.AlertSeverity]int, 4),
		ByChannel:   make(map[models.Channel]int, len(models.AllChannels)),
	}
	for _, a := range alerts {
		out.ByStatus[a.Status]++
		out.BySeverity[a.Severity]++
		for _, ch := range a.Channels {
			out.ByChannel[ch]++
		}
		out.TotalRecipients += a.DeliveryStats.Total
		out.SentNotifications += a.DeliveryStats.Sent
		out.FailedNotifications += a.DeliveryStats.Failed
		out.TotalAcknowledgments += len(a.Acknowledgments)
	}
	if out.TotalRecipients > 0 {
		rate := float64(out.SentNotifications) / float64(out.TotalRecipients) * 100
		out.DeliverySuccessRate = math.Round(rate*100) / 100
	}
	return out
}
