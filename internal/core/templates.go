package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sirenhq/siren/internal/template"
	"github.com/sirenhq/siren/pkg/models"
)

// CreateTemplate stores a new notification template. Placeholders used in the
// patterns but not declared are added to the variable list.
func (s *Service) CreateTemplate(ctx context.Context, actor models.Actor, req *models.CreateTemplateRequest) (*models.NotificationTemplate, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	now := s.clock()
	tmpl := &models.NotificationTemplate{
		Name:            req.Name,
		Category:        req.Category,
		Type:            strings.TrimSpace(req.Type),
		TitlePattern:    req.TitlePattern,
		ContentPattern:  req.ContentPattern,
		Variables:       req.Variables,
		DefaultChannels: uniqueChannels(req.DefaultChannels),
		DefaultSeverity: req.DefaultSeverity,
		IsActive:        true,
		CreatedBy:       actor.UserID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if req.IsActive != nil {
		tmpl.IsActive = *req.IsActive
	}
	if err := normalizeTemplate(tmpl); err != nil {
		return nil, err
	}
	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, persistenceError("create template", err)
	}
	s.log.Info("template created", "template_id", tmpl.ID, "name", tmpl.Name, "created_by", actor.UserID)
	s.publishTemplate(models.EventTemplateCreated, tmpl.ID, tmpl)
	return tmpl, nil
}

// normalizeTemplate fills defaults and reconciles the declared variables with the
// placeholders used in the patterns.
func normalizeTemplate(tmpl *models.NotificationTemplate) error {
	if tmpl.Type == "" {
		tmpl.Type = "alert"
	}
	if tmpl.DefaultSeverity == "" {
		tmpl.DefaultSeverity = models.AlertSeverityMedium
	}
	if len(tmpl.DefaultChannels) == 0 {
		tmpl.DefaultChannels = []models.Channel{models.ChannelEmail}
	}
	declared := make([]string, 0, len(tmpl.Variables))
	seen := make(map[string]struct{}, len(tmpl.Variables))
	for _, v := range tmpl.Variables {
		v = strings.TrimSpace(v)
		if !template.ValidName(v) {
			return fieldError("variables", fmt.Sprintf("invalid variable name %q", v))
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		declared = append(declared, v)
	}
	tmpl.Variables = declared
	tmpl.Variables = append(tmpl.Variables, template.UndeclaredVariables(tmpl)...)
	return nil
}

// GetTemplate returns a single template.
func (s *Service) GetTemplate(ctx context.Context, id models.TemplateID) (*models.NotificationTemplate, error) {
	return s.getTemplate(ctx, id)
}

func (s *Service) getTemplate(ctx context.Context, id models.TemplateID) (*models.NotificationTemplate, error) {
	tmpl, err := s.store.GetTemplate(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, persistenceError("get template", err)
	}
	return tmpl, nil
}

// ListTemplates returns templates ordered by category and name.
func (s *Service) ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]*models.NotificationTemplate, error) {
	templates, err := s.store.ListTemplates(ctx, filter)
	if err != nil {
		return nil, persistenceError("list templates", err)
	}
	return templates, nil
}

// UpdateTemplate applies a patch to a template.
func (s *Service) UpdateTemplate(ctx context.Context, id models.TemplateID, req *models.UpdateTemplateRequest) (*models.NotificationTemplate, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	tmpl, err := s.getTemplate(ctx, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]string{}
	setRequired := func(field string, src *string, dst *string) {
		if src == nil {
			return
		}
		if v := strings.TrimSpace(*src); v == "" {
			fields[field] = "is required"
		} else {
			*dst = v
		}
	}
	setRequired("name", req.Name, &tmpl.Name)
	setRequired("category", req.Category, &tmpl.Category)
	setRequired("title_pattern", req.TitlePattern, &tmpl.TitlePattern)
	setRequired("content_pattern", req.ContentPattern, &tmpl.ContentPattern)
	if req.Type != nil {
		tmpl.Type = strings.TrimSpace(*req.Type)
	}
	if req.Variables != nil {
		tmpl.Variables = *req.Variables
	}
	if req.DefaultChannels != nil {
		if msg := checkChannels(*req.DefaultChannels); msg != "" {
			fields["default_channels"] = msg
		} else {
			tmpl.DefaultChannels = uniqueChannels(*req.DefaultChannels)
		}
	}
	if req.DefaultSeverity != nil {
		if !req.DefaultSeverity.Valid() {
			fields["default_severity"] = "must be one of [low medium high critical]"
		} else {
			tmpl.DefaultSeverity = *req.DefaultSeverity
		}
	}
	if req.IsActive != nil {
		tmpl.IsActive = *req.IsActive
	}
	if len(fields) > 0 {
		return nil, &ValidationError{Fields: fields}
	}
	if err := normalizeTemplate(tmpl); err != nil {
		return nil, err
	}

	tmpl.UpdatedAt = s.clock()
	if err := s.store.UpdateTemplate(ctx, tmpl); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrTemplateNotFound
		}
		return nil, persistenceError("update template", err)
	}
	s.log.Info("template updated", "template_id", id)
	s.publishTemplate(models.EventTemplateUpdated, id, tmpl)
	return tmpl, nil
}

// DeleteTemplate removes a template. Alerts created from it keep their provenance.
func (s *Service) DeleteTemplate(ctx context.Context, id models.TemplateID) error {
	if err := s.store.DeleteTemplate(ctx, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrTemplateNotFound
		}
		return persistenceError("delete template", err)
	}
	s.log.Info("template deleted", "template_id", id)
	s.publishTemplate(models.EventTemplateDeleted, id, nil)
	return nil
}

// ApplyTemplate renders a template with the supplied variables into a new draft
// alert. Channels and severity fall back to the template defaults.
func (s *Service) ApplyTemplate(ctx context.Context, actor models.Actor, id models.TemplateID, req *models.ApplyTemplateRequest) (*models.Alert, error) {
	if req == nil {
		return nil, fieldError("request", "is required")
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	tmpl, err := s.getTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	if !tmpl.IsActive {
		return nil, fmt.Errorf("%w: template %d is inactive", ErrInvalidState, id)
	}

	rendered := template.RenderTemplate(tmpl, req.Variables)
	channels := req.Channels
	if len(channels) == 0 {
		channels = tmpl.DefaultChannels
	}
	severity := req.Severity
	if severity == "" {
		severity = tmpl.DefaultSeverity
	}
	draft := models.AlertStatusDraft
	return s.createAlert(ctx, actor, &models.CreateAlertRequest{
		Title:     rendered.Title,
		Message:   rendered.Content,
		Severity:  severity,
		Channels:  channels,
		Targeting: req.Targeting,
		Status:    &draft,
	}, provenance{template: &models.TemplateUsage{TemplateID: id, UsedAt: s.clock()}})
}

// ListTemplateCategories returns the distinct template categories, sorted.
func (s *Service) ListTemplateCategories(ctx context.Context) ([]string, error) {
	templates, err := s.ListTemplates(ctx, models.TemplateFilter{})
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(templates))
	for _, t := range templates {
		set[t.Category] = struct{}{}
	}
	return sortedKeys(set), nil
}

// ListTemplateVariables returns every variable name used by any template, sorted.
func (s *Service) ListTemplateVariables(ctx context.Context) ([]string, error) {
	templates, err := s.ListTemplates(ctx, models.TemplateFilter{})
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{})
	for _, t := range templates {
		for _, v := range t.Variables {
			set[v] = struct{}{}
		}
		for _, v := range template.UndeclaredVariables(t) {
			set[v] = struct{}{}
		}
	}
	return sortedKeys(set), nil
}

func (s *Service) publishTemplate(event string, id models.TemplateID, tmpl *models.NotificationTemplate) {
	s.emit(event, func() {
		payload := models.TemplateEvent{TemplateID: id, Template: tmpl}
		s.publisher.PublishToRoom(models.RoomAdmin, event, payload)
		s.publisher.PublishToRoom(models.RoomOperator, event, payload)
	})
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
