// Package commands provides the CLI command definitions for siren.
package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/sirenhq/siren/internal/cli/client"
	"github.com/sirenhq/siren/internal/cli/config"
	"github.com/sirenhq/siren/internal/cli/render"
)

// Styles for CLI output
var (
	logoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DC2626")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// App holds the shared application state
type App struct {
	Config *config.Config

	// ServerConfigPath is the server's TOML file, used by commands that run
	// the engine or touch its database directly.
	ServerConfigPath string
	Debug            bool
	NoColor          bool

	Version string
	Commit  string
	Date    string
}

// New creates the root CLI command with all subcommands
func New(version, commit, date string) *cli.Command {
	app := &App{
		Version: version,
		Commit:  commit,
		Date:    date,
	}

	return &cli.Command{
		Name:    "siren",
		Usage:   "emergency alert distribution engine",
		Version: version,
		Description: `siren runs the alert distribution server and talks to it from the terminal.

   Use 'siren serve' to start the server, 'siren users' to manage recipients
   in the local database, and 'siren alerts' or 'siren incidents' to work
   with a running server.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the server config file",
				Sources: cli.EnvVars("SIREN_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "cli-config",
				Usage:   "path to the CLI config file",
				Sources: cli.EnvVars("SIREN_CLI_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "profile",
				Aliases: []string{"p"},
				Usage:   "CLI configuration profile to use",
				Sources: cli.EnvVars("SIREN_CLI_PROFILE"),
			},
			&cli.StringFlag{
				Name:  "server",
				Usage: "siren server URL",
			},
			&cli.IntFlag{
				Name:  "actor-id",
				Usage: "user id sent as the acting user",
			},
			&cli.StringFlag{
				Name:  "actor-role",
				Usage: "role sent as the acting user (admin, operator, subscriber)",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format: table, text, json, jsonl, csv",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			app.Debug = cmd.Bool("debug")
			app.NoColor = cmd.Bool("no-color")
			app.ServerConfigPath = cmd.String("config")

			if app.Debug {
				log.SetLevel(log.DebugLevel)
			}
			if app.NoColor {
				log.SetStyles(log.DefaultStyles())
				lipgloss.SetHasDarkBackground(false)
			}

			cfg, err := config.Load(config.LoadOptions{
				ConfigPath: cmd.String("cli-config"),
				Profile:    cmd.String("profile"),
			})
			if err != nil {
				log.Debug("config load warning", "error", err)
				cfg = config.Default()
			}

			// Override with CLI flags
			if server := cmd.String("server"); server != "" {
				cfg.Server.URL = server
			}
			if id := cmd.Int("actor-id"); id > 0 {
				cfg.Actor.ID = int64(id)
			}
			if role := cmd.String("actor-role"); role != "" {
				cfg.Actor.Role = role
			}
			if output := cmd.String("output"); output != "" {
				cfg.Output.Format = output
			}

			app.Config = cfg
			return ctx, nil
		},
		Commands: []*cli.Command{
			app.serveCommand(),
			app.usersCommand(),
			app.alertsCommand(),
			app.incidentsCommand(),
			app.settingsCommand(),
			app.versionCommand(),
		},
	}
}

// isTerminal returns true if stdout is a terminal
func isTerminal() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

// apiClient builds a client for the configured server and actor.
func (a *App) apiClient() (*client.Client, error) {
	if a.Config.Actor.ID <= 0 || a.Config.Actor.Role == "" {
		return nil, fmt.Errorf("actor not configured. Pass --actor-id and --actor-role or set SIREN_CLI_ACTOR_ID and SIREN_CLI_ACTOR_ROLE")
	}
	return client.New(a.Config)
}

func (a *App) renderer() (*render.Renderer, error) {
	return render.New(render.Options{
		Format: a.Config.Output.Format,
		Color:  a.useColor(),
	})
}

func (a *App) useColor() bool {
	if a.NoColor {
		return false
	}
	switch a.Config.Output.Color {
	case "always":
		return true
	case "never":
		return false
	default:
		return isTerminal()
	}
}

// versionCommand shows version information
func (a *App) versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "show version information",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			fmt.Printf("%s version %s\n", logoStyle.Render("siren"), a.Version)
			fmt.Printf("  commit: %s\n", mutedStyle.Render(a.Commit))
			fmt.Printf("  built:  %s\n", mutedStyle.Render(a.Date))
			return nil
		},
	}
}
