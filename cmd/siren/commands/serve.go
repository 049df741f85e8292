package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/sirenhq/siren/internal/app"
	"github.com/sirenhq/siren/internal/cli/render"
	"github.com/sirenhq/siren/pkg/models"
)

// serveCommand runs the HTTP and websocket server until the process is signalled.
func (a *App) serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the alert distribution server",
		Description: `Start the alert distribution server.

Configuration is read from --config and SIREN_* environment variables.
Runtime settings stored in the database override the file on startup.`,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			application, err := a.newEngine()
			if err != nil {
				return err
			}

			if err := application.Initialize(ctx); err != nil {
				_ = application.Shutdown(context.Background())
				return fmt.Errorf("failed to initialize: %w", err)
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- application.Start()
			}()

			select {
			case err := <-errCh:
				_ = application.Shutdown(context.Background())
				if err != nil {
					return fmt.Errorf("server stopped: %w", err)
				}
				return nil
			case <-ctx.Done():
				log.Info("shutdown signal received")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return application.Shutdown(shutdownCtx)
		},
	}
}

func (a *App) newEngine() (*app.App, error) {
	return app.New(app.Options{
		ConfigPath: a.ServerConfigPath,
		Debug:      a.Debug,
		BuildInfo:  fmt.Sprintf("%s (%s)", a.Commit, a.Date),
		Version:    a.Version,
	})
}

// withDatabase opens the engine's database for commands that manage data
// without running the server.
func (a *App) withDatabase(fn func(*app.App) error) error {
	application, err := a.newEngine()
	if err != nil {
		return err
	}
	if err := application.OpenDatabase(); err != nil {
		return err
	}
	defer func() {
		if err := application.Close(); err != nil {
			log.Warn("failed to close database", "error", err)
		}
	}()
	return fn(application)
}

// usersCommand manages recipients in the local database.
func (a *App) usersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "manage alert recipients in the local database",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list users",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "role",
						Usage: "only list users with this role",
					},
				},
				Action: a.runUsersList,
			},
			{
				Name:  "create",
				Usage: "add a user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Usage: "unique username", Required: true},
					&cli.StringFlag{Name: "email", Usage: "email address"},
					&cli.StringFlag{Name: "phone", Usage: "phone number for sms"},
					&cli.StringFlag{Name: "role", Usage: "admin, operator or subscriber", Value: string(models.RoleSubscriber)},
					&cli.BoolFlag{Name: "email-enabled", Usage: "receive email notifications", Value: true},
					&cli.BoolFlag{Name: "sms-enabled", Usage: "receive sms notifications"},
					&cli.BoolFlag{Name: "push-enabled", Usage: "receive push notifications"},
				},
				Action: a.runUsersCreate,
			},
			{
				Name:      "delete",
				Usage:     "remove a user",
				ArgsUsage: "<user-id>",
				Action:    a.runUsersDelete,
			},
		},
	}
}

func (a *App) runUsersList(ctx context.Context, cmd *cli.Command) error {
	r, err := a.renderer()
	if err != nil {
		return err
	}

	return a.withDatabase(func(application *app.App) error {
		var users []*models.User
		if role := models.Role(cmd.String("role")); role != "" {
			if !role.Valid() {
				return fmt.Errorf("invalid role %q", role)
			}
			users, err = application.SQLite.ListUsersByRole(ctx, role)
		} else {
			users, err = application.SQLite.ListUsers(ctx)
		}
		if err != nil {
			return err
		}

		tbl := render.Table{Headers: []string{"ID", "USERNAME", "ROLE", "EMAIL", "PHONE", "CHANNELS"}}
		for _, u := range users {
			tbl.Rows = append(tbl.Rows, []string{
				strconv.FormatInt(int64(u.ID), 10),
				u.Username,
				string(u.Role),
				u.Email,
				u.Phone,
				optedInChannels(u.Recipient()),
			})
		}
		return r.Render(users, tbl)
	})
}

func (a *App) runUsersCreate(ctx context.Context, cmd *cli.Command) error {
	role := models.Role(cmd.String("role"))
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	now := time.Now().UTC()
	user := &models.User{
		Username:     strings.TrimSpace(cmd.String("username")),
		Email:        cmd.String("email"),
		Phone:        cmd.String("phone"),
		Role:         role,
		EmailEnabled: cmd.Bool("email-enabled"),
		SMSEnabled:   cmd.Bool("sms-enabled"),
		PushEnabled:  cmd.Bool("push-enabled"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if user.Username == "" {
		return fmt.Errorf("username is required")
	}

	return a.withDatabase(func(application *app.App) error {
		if err := application.SQLite.CreateUser(ctx, user); err != nil {
			if errors.Is(err, models.ErrConflict) {
				return fmt.Errorf("user %q already exists", user.Username)
			}
			return err
		}
		fmt.Printf("%s user %s (id %d, %s)\n", successStyle.Render("Created"), user.Username, user.ID, user.Role)
		return nil
	})
}

func (a *App) runUsersDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("a numeric user id is required")
	}

	return a.withDatabase(func(application *app.App) error {
		if err := application.SQLite.DeleteUser(ctx, models.UserID(id)); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return fmt.Errorf("user %d not found", id)
			}
			return err
		}
		fmt.Printf("%s user %d\n", successStyle.Render("Deleted"), id)
		return nil
	})
}

func optedInChannels(r models.Recipient) string {
	var channels []string
	for _, ch := range models.AllChannels {
		if r.OptedIn(ch) {
			channels = append(channels, string(ch))
		}
	}
	if len(channels) == 0 {
		return "-"
	}
	return strings.Join(channels, ",")
}
