package server

import (
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/sirenhq/siren/internal/config"
	"github.com/sirenhq/siren/pkg/models"
)

const maskedValue = "********"

// SystemSettingResponse represents a setting in API responses.
type SystemSettingResponse struct {
	Key         string `json:"key"`
	Value       string `json:"value"`
	ValueType   string `json:"value_type"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	IsSensitive bool   `json:"is_sensitive"`
	MaskedValue string `json:"masked_value,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// UpdateSettingRequest represents a request to update a setting.
type UpdateSettingRequest struct {
	Value       string `json:"value"`
	ValueType   string `json:"value_type"`
	Description string `json:"description"`
	IsSensitive bool   `json:"is_sensitive"`
}

// SettingsByCategoryResponse groups settings by category.
type SettingsByCategoryResponse struct {
	Category string                  `json:"category"`
	Settings []SystemSettingResponse `json:"settings"`
}

// handleListSettings returns all system settings grouped by category.
// GET /api/v1/admin/settings
func (s *Server) handleListSettings(c *fiber.Ctx) error {
	settings, err := s.sqlite.ListSettings(c.Context())
	if err != nil {
		s.log.Error("failed to list settings", "error", err)
		return SendError(c, fiber.StatusInternalServerError, "failed to retrieve settings")
	}

	categoriesMap := make(map[string][]SystemSettingResponse)
	for _, setting := range settings {
		categoriesMap[setting.Category] = append(categoriesMap[setting.Category], settingToResponse(setting))
	}

	categories := make([]string, 0, len(categoriesMap))
	for category := range categoriesMap {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	result := make([]SettingsByCategoryResponse, 0, len(categories))
	for _, category := range categories {
		result = append(result, SettingsByCategoryResponse{
			Category: category,
			Settings: categoriesMap[category],
		})
	}
	return SendSuccess(c, fiber.StatusOK, result)
}

// handleListSettingsByCategory returns settings for a specific category.
// GET /api/v1/admin/settings/category/:category
func (s *Server) handleListSettingsByCategory(c *fiber.Ctx) error {
	category := c.Params("category")
	settings, err := s.sqlite.ListSettingsByCategory(c.Context(), category)
	if err != nil {
		s.log.Error("failed to list settings by category", "category", category, "error", err)
		return SendError(c, fiber.StatusInternalServerError, "failed to retrieve settings")
	}

	response := make([]SystemSettingResponse, 0, len(settings))
	for _, setting := range settings {
		response = append(response, settingToResponse(setting))
	}
	return SendSuccess(c, fiber.StatusOK, response)
}

// handleGetSetting returns a specific setting by key.
// GET /api/v1/admin/settings/:key
func (s *Server) handleGetSetting(c *fiber.Ctx) error {
	key := c.Params("key")
	value, err := s.sqlite.GetSetting(c.Context(), key)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "setting not found", models.NotFoundErrorType)
		}
		s.log.Error("failed to get setting", "key", key, "error", err)
		return SendError(c, fiber.StatusInternalServerError, "failed to retrieve setting")
	}
	if sensitiveSettings[key] && value != "" {
		value = maskedValue
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"key": key, "value": value})
}

// handleUpdateSetting updates or creates a runtime setting. Values take effect the
// next time the service starts.
// PUT /api/v1/admin/settings/:key
func (s *Server) handleUpdateSetting(c *fiber.Ctx) error {
	actor := actorFrom(c)
	key := c.Params("key")
	if !slices.Contains(config.RuntimeKeys, key) {
		return SendErrorWithType(c, fiber.StatusBadRequest, fmt.Sprintf("unknown setting %q", key), models.ValidationErrorType)
	}

	var req UpdateSettingRequest
	if err := c.BodyParser(&req); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, "invalid request body", models.ValidationErrorType)
	}
	if req.ValueType == "" {
		req.ValueType = settingValueTypes[key]
	}

	if err := validateSettingValue(req.Value, req.ValueType); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, fmt.Sprintf("invalid value: %v", err), models.ValidationErrorType)
	}
	if err := validateSpecificSetting(key, req.Value); err != nil {
		return SendErrorWithType(c, fiber.StatusBadRequest, fmt.Sprintf("validation failed: %v", err), models.ValidationErrorType)
	}

	setting := &models.Setting{
		Key:         key,
		Value:       req.Value,
		ValueType:   req.ValueType,
		Category:    settingCategory(key),
		Description: req.Description,
		IsSensitive: req.IsSensitive || sensitiveSettings[key],
	}
	if err := s.sqlite.UpsertSetting(c.Context(), setting); err != nil {
		s.log.Error("failed to update setting", "key", key, "error", err)
		return SendError(c, fiber.StatusInternalServerError, "failed to update setting")
	}

	s.log.Info("setting updated", "key", key, "user_id", actor.UserID)
	applies := "restart"
	if liveSetting(key) {
		applies = "next_send"
	}
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "setting updated successfully", "key": key, "applies": applies})
}

// handleDeleteSetting deletes a setting so the static configuration applies again.
// DELETE /api/v1/admin/settings/:key
func (s *Server) handleDeleteSetting(c *fiber.Ctx) error {
	actor := actorFrom(c)
	key := c.Params("key")

	if err := s.sqlite.DeleteSetting(c.Context(), key); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return SendErrorWithType(c, fiber.StatusNotFound, "setting not found", models.NotFoundErrorType)
		}
		s.log.Error("failed to delete setting", "key", key, "error", err)
		return SendError(c, fiber.StatusInternalServerError, "failed to delete setting")
	}

	s.log.Info("setting deleted", "key", key, "user_id", actor.UserID)
	return SendSuccess(c, fiber.StatusOK, fiber.Map{"message": "setting deleted successfully"})
}

// settingToResponse converts a stored setting to API response format.
// Sensitive values never leave the server.
func settingToResponse(setting *models.Setting) SystemSettingResponse {
	response := SystemSettingResponse{
		Key:         setting.Key,
		Value:       setting.Value,
		ValueType:   setting.ValueType,
		Category:    setting.Category,
		Description: setting.Description,
		IsSensitive: setting.IsSensitive,
		UpdatedAt:   setting.UpdatedAt.Format(time.RFC3339),
	}
	if response.IsSensitive && response.Value != "" {
		response.Value = ""
		response.MaskedValue = maskedValue
	}
	return response
}

func settingCategory(key string) string {
	category, _, _ := strings.Cut(key, ".")
	return category
}

// liveSetting reports whether key is read by the notification senders on every send.
func liveSetting(key string) bool {
	switch settingCategory(key) {
	case "smtp", "sms", "push":
		return true
	}
	return false
}

var sensitiveSettings = map[string]bool{
	"smtp.password": true,
	"sms.token":     true,
	"push.token":    true,
}

var settingValueTypes = map[string]string{
	"alerts.cancel_window":        "duration",
	"alerts.dispatch_concurrency": "number",
	"alerts.notification_timeout": "duration",
	"notifications.dry_run":       "boolean",
	"smtp.port":                   "number",
}

// validateSettingValue validates a setting value based on its type.
func validateSettingValue(value, valueType string) error {
	switch valueType {
	case "boolean":
		_, err := strconv.ParseBool(value)
		return err
	case "number":
		_, err := strconv.ParseFloat(value, 64)
		return err
	case "duration":
		_, err := time.ParseDuration(value)
		return err
	case "string", "":
		return nil
	default:
		return fmt.Errorf("invalid value_type: %s (must be: string, number, boolean, or duration)", valueType)
	}
}

// validateSpecificSetting performs additional validation for specific settings.
func validateSpecificSetting(key, value string) error {
	validator, ok := specificSettingValidators[key]
	if !ok {
		return nil
	}
	return validator(value)
}

var specificSettingValidators = map[string]func(string) error{
	"alerts.cancel_window":        validateNonNegativeDuration,
	"alerts.notification_timeout": validatePositiveDuration,
	"alerts.dispatch_concurrency": validateNonNegativeInt,
	"smtp.port":                   validateNonNegativeInt,
	"smtp.security":               validateSMTPSecurity,
	"smtp.from":                   validateEmailAddress,
	"smtp.reply_to":               validateEmailAddress,
	"sms.gateway_url":             validateOptionalURL,
	"push.gateway_url":            validateOptionalURL,
}

func validateOptionalURL(value string) error {
	if value == "" {
		return nil
	}
	parsedURL, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL format")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("URL must use http or https scheme")
	}
	return nil
}

func validateNonNegativeInt(value string) error {
	intVal, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("must be a valid integer")
	}
	if intVal < 0 {
		return fmt.Errorf("must be 0 or greater")
	}
	return nil
}

func validateNonNegativeDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a valid duration")
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validatePositiveDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("must be a valid duration")
	}
	if d <= 0 {
		return fmt.Errorf("must be greater than 0")
	}
	return nil
}

func validateSMTPSecurity(value string) error {
	if value == "" {
		return nil
	}
	security := strings.ToLower(value)
	if security != "none" && security != "starttls" && security != "tls" {
		return fmt.Errorf("smtp_security must be none, starttls, or tls")
	}
	return nil
}

func validateEmailAddress(value string) error {
	if value == "" {
		return nil
	}
	if _, err := mail.ParseAddress(value); err != nil {
		return fmt.Errorf("must be a valid email address")
	}
	return nil
}
