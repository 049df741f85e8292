package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirenhq/siren/pkg/models"
)

var admin = models.Actor{UserID: 1, Role: models.RoleAdmin}

func evacuationTemplate(t *testing.T, h *harness) *models.NotificationTemplate {
	t.Helper()
	tmpl, err := h.svc.CreateTemplate(context.Background(), admin, &models.CreateTemplateRequest{
		Name:            "County evacuation",
		Category:        "evacuation",
		TitlePattern:    "{{county}} Alert",
		ContentPattern:  "Evacuate {{county}} now",
		DefaultChannels: []models.Channel{models.ChannelPush, models.ChannelEmail},
		DefaultSeverity: models.AlertSeverityCritical,
	})
	require.NoError(t, err)
	return tmpl
}

func TestApplyTemplateRendersDraft(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	tmpl := evacuationTemplate(t, h)

	alert, err := h.svc.ApplyTemplate(ctx, operator, tmpl.ID, &models.ApplyTemplateRequest{
		Variables: map[string]string{"county": "Riverside"},
		Targeting: &models.Targeting{Roles: []models.Role{models.RoleSubscriber}},
	})
	require.NoError(t, err)

	assert.Equal(t, "Riverside Alert", alert.Title)
	assert.Equal(t, "Evacuate Riverside now", alert.Message)
	assert.Equal(t, models.AlertStatusDraft, alert.Status)
	assert.Equal(t, models.AlertSeverityCritical, alert.Severity)
	assert.Equal(t, []models.Channel{models.ChannelPush, models.ChannelEmail}, alert.Channels)
	require.NotNil(t, alert.FromTemplate)
	assert.Equal(t, tmpl.ID, alert.FromTemplate.TemplateID)
	assert.Equal(t, h.clock.Now(), alert.FromTemplate.UsedAt)
	assert.Empty(t, h.publisher.named(models.EventPersonalAlert))

	sent, err := h.svc.SendAlert(ctx, operator, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, sent.FromTemplate.TemplateID)
	assert.Equal(t, 3, sent.DeliveryStats.Total)
}

func TestApplyTemplateOverrides(t *testing.T) {
	h := newHarness()
	tmpl := evacuationTemplate(t, h)

	alert, err := h.svc.ApplyTemplate(context.Background(), operator, tmpl.ID, &models.ApplyTemplateRequest{
		Variables: map[string]string{"county": "Kern", "unused": "x"},
		Targeting: &models.Targeting{All: true},
		Channels:  []models.Channel{models.ChannelSMS},
		Severity:  models.AlertSeverityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, []models.Channel{models.ChannelSMS}, alert.Channels)
	assert.Equal(t, models.AlertSeverityLow, alert.Severity)
}

func TestApplyTemplateLeavesMissingPlaceholders(t *testing.T) {
	h := newHarness()
	tmpl := evacuationTemplate(t, h)

	alert, err := h.svc.ApplyTemplate(context.Background(), operator, tmpl.ID, &models.ApplyTemplateRequest{
		Targeting: &models.Targeting{All: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "{{county}} Alert", alert.Title)
}

func TestApplyTemplateErrors(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	tmpl := evacuationTemplate(t, h)

	_, err := h.svc.ApplyTemplate(ctx, operator, tmpl.ID, &models.ApplyTemplateRequest{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = h.svc.ApplyTemplate(ctx, operator, 999, &models.ApplyTemplateRequest{Targeting: &models.Targeting{All: true}})
	require.ErrorIs(t, err, ErrTemplateNotFound)

	inactive := false
	_, err = h.svc.UpdateTemplate(ctx, tmpl.ID, &models.UpdateTemplateRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = h.svc.ApplyTemplate(ctx, operator, tmpl.ID, &models.ApplyTemplateRequest{Targeting: &models.Targeting{All: true}})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCreateTemplateDefaultsAndVariables(t *testing.T) {
	h := newHarness()

	tmpl, err := h.svc.CreateTemplate(context.Background(), admin, &models.CreateTemplateRequest{
		Name:           "Road closure",
		Category:       "traffic",
		TitlePattern:   "{{ road }} closed",
		ContentPattern: "{{road}} is closed until {{until}}. Contact {{contact}}.",
		Variables:      []string{"contact", "road"},
	})
	require.NoError(t, err)

	assert.True(t, tmpl.IsActive)
	assert.Equal(t, "alert", tmpl.Type)
	assert.Equal(t, models.AlertSeverityMedium, tmpl.DefaultSeverity)
	assert.Equal(t, []models.Channel{models.ChannelEmail}, tmpl.DefaultChannels)
	assert.Equal(t, []string{"contact", "road", "until"}, tmpl.Variables)
	assert.Equal(t, admin.UserID, tmpl.CreatedBy)

	created := h.publisher.named(models.EventTemplateCreated)
	require.Len(t, created, 2)
	assert.ElementsMatch(t, []string{models.RoomAdmin, models.RoomOperator}, []string{created[0].target, created[1].target})
}

func TestCreateTemplateRejectsBadVariableName(t *testing.T) {
	h := newHarness()

	_, err := h.svc.CreateTemplate(context.Background(), admin, &models.CreateTemplateRequest{
		Name:           "Broken",
		Category:       "misc",
		TitlePattern:   "x",
		ContentPattern: "y",
		Variables:      []string{"1st-county"},
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestUpdateAndDeleteTemplate(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	tmpl := evacuationTemplate(t, h)

	content := "Leave {{county}} via {{route}}"
	updated, err := h.svc.UpdateTemplate(ctx, tmpl.ID, &models.UpdateTemplateRequest{ContentPattern: &content})
	require.NoError(t, err)
	assert.Equal(t, []string{"county", "route"}, updated.Variables)

	blank := ""
	_, err = h.svc.UpdateTemplate(ctx, tmpl.ID, &models.UpdateTemplateRequest{Name: &blank})
	require.ErrorIs(t, err, ErrValidation)

	require.NoError(t, h.svc.DeleteTemplate(ctx, tmpl.ID))
	require.ErrorIs(t, h.svc.DeleteTemplate(ctx, tmpl.ID), ErrTemplateNotFound)
	assert.Len(t, h.publisher.named(models.EventTemplateUpdated), 2)
	assert.Len(t, h.publisher.named(models.EventTemplateDeleted), 2)
}

func TestTemplateCategoriesAndVariables(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	evacuationTemplate(t, h)
	_, err := h.svc.CreateTemplate(ctx, admin, &models.CreateTemplateRequest{
		Name:           "Heat advisory",
		Category:       "weather",
		TitlePattern:   "Heat advisory for {{county}}",
		ContentPattern: "Expected high of {{temperature}}",
	})
	require.NoError(t, err)

	categories, err := h.svc.ListTemplateCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"evacuation", "weather"}, categories)

	variables, err := h.svc.ListTemplateVariables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"county", "temperature"}, variables)
}
