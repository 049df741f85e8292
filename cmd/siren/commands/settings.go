package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/sirenhq/siren/internal/cli/client"
	"github.com/sirenhq/siren/internal/cli/render"
)

// settingsCommand manages runtime settings through the admin API.
func (a *App) settingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "settings",
		Usage: "manage runtime settings (admin only)",
		Description: `Runtime settings override the server config file. Provider settings (smtp, sms,
push) apply to the next notification; the rest apply on the next server start.

Examples:
   siren settings list
   siren settings set alerts.cancel_window 10m
   siren settings delete smtp.host`,
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "list stored settings",
				Action: a.runSettingsList,
			},
			{
				Name:      "set",
				Usage:     "store a setting",
				ArgsUsage: "<key> <value>",
				Action:    a.runSettingsSet,
			},
			{
				Name:      "delete",
				Usage:     "remove a setting so the config file applies again",
				ArgsUsage: "<key>",
				Action:    a.runSettingsDelete,
			},
		},
	}
}

func (a *App) runSettingsList(ctx context.Context, cmd *cli.Command) error {
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}
	r, err := a.renderer()
	if err != nil {
		return err
	}

	groups, err := apiClient.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to list settings: %w", err)
	}

	var settings []client.Setting
	tbl := render.Table{Headers: []string{"KEY", "VALUE", "TYPE", "UPDATED"}}
	for _, group := range groups {
		for _, s := range group.Settings {
			settings = append(settings, s)
			value := s.Value
			if s.IsSensitive {
				value = s.MaskedValue
			}
			tbl.Rows = append(tbl.Rows, []string{s.Key, value, s.ValueType, s.UpdatedAt})
		}
	}
	return r.Render(settings, tbl)
}

func (a *App) runSettingsSet(ctx context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("usage: siren settings set <key> <value>")
	}
	key, value := cmd.Args().Get(0), cmd.Args().Get(1)

	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}
	if err := apiClient.UpdateSetting(ctx, key, value); err != nil {
		return fmt.Errorf("failed to update %s: %w", key, err)
	}
	note := "(restart the server to apply)"
	switch category, _, _ := strings.Cut(key, "."); category {
	case "smtp", "sms", "push":
		note = "(applies to the next notification)"
	}
	fmt.Printf("%s %s %s\n", successStyle.Render("Updated"), key, mutedStyle.Render(note))
	return nil
}

func (a *App) runSettingsDelete(ctx context.Context, cmd *cli.Command) error {
	key := cmd.Args().First()
	if key == "" {
		return fmt.Errorf("a setting key is required")
	}

	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}
	if err := apiClient.DeleteSetting(ctx, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	fmt.Printf("%s %s\n", successStyle.Render("Deleted"), key)
	return nil
}
