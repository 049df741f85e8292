package commands

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/sirenhq/siren/internal/cli/render"
	"github.com/sirenhq/siren/internal/cli/timerange"
	"github.com/sirenhq/siren/pkg/models"
)

// alertsCommand returns the alerts subcommand
func (a *App) alertsCommand() *cli.Command {
	return &cli.Command{
		Name:  "alerts",
		Usage: "create, send and acknowledge alerts on a running server",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list alerts, newest first",
				Description: `List alerts visible to the configured actor.

Examples:
   siren alerts list --since 24h
   siren alerts list --status sent --severity critical -o json`,
				Flags: append(timeRangeFlags(),
					&cli.StringFlag{Name: "status", Usage: "draft, pending, sent, cancelled or failed"},
					&cli.StringFlag{Name: "severity", Usage: "low, medium, high or critical"},
					&cli.IntFlag{Name: "created-by", Usage: "only alerts created by this user id"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum number of results"},
				),
				Action: a.runAlertsList,
			},
			{
				Name:      "get",
				Usage:     "show a single alert",
				ArgsUsage: "<alert-id>",
				Action:    a.runAlertsGet,
			},
			{
				Name:  "create",
				Usage: "create an alert and send it unless --draft is given",
				Description: `Create an alert. Missing fields are prompted for when running in a terminal.

Examples:
   siren alerts create --title "Flood warning" --message "Move to higher ground" \
       --severity critical --channel email --channel sms --role subscriber
   siren alerts create --draft --title "Drill" --message "Practice run" --all`,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Usage: "alert title"},
					&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "alert message"},
					&cli.StringFlag{Name: "severity", Usage: "low, medium, high or critical", Value: string(models.AlertSeverityMedium)},
					&cli.StringSliceFlag{Name: "channel", Usage: "delivery channel (repeatable): email, sms, push"},
					&cli.StringSliceFlag{Name: "role", Usage: "target every user with this role (repeatable)"},
					&cli.StringSliceFlag{Name: "user", Usage: "target a specific user id (repeatable)"},
					&cli.BoolFlag{Name: "all", Usage: "target every user"},
					&cli.BoolFlag{Name: "draft", Usage: "store the alert as a draft without sending"},
				},
				Action: a.runAlertsCreate,
			},
			{
				Name:      "send",
				Usage:     "send a draft or pending alert",
				ArgsUsage: "<alert-id>",
				Action:    a.runAlertsSend,
			},
			{
				Name:      "cancel",
				Usage:     "cancel a sent alert within the cancel window",
				ArgsUsage: "<alert-id>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "skip the confirmation prompt"},
				},
				Action: a.runAlertsCancel,
			},
			{
				Name:      "ack",
				Usage:     "acknowledge an alert as the configured actor",
				ArgsUsage: "<alert-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "notes", Aliases: []string{"n"}, Usage: "optional notes"},
				},
				Action: a.runAlertsAck,
			},
			{
				Name:   "stats",
				Usage:  "show delivery and acknowledgment statistics",
				Flags:  timeRangeFlags(),
				Action: a.runAlertsStats,
			},
		},
	}
}

func timeRangeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "since",
			Aliases: []string{"s"},
			Usage:   "relative time range (e.g., 15m, 1h, 24h, 7d)",
		},
		&cli.StringFlag{
			Name:  "from",
			Usage: "absolute start time (ISO8601 format)",
		},
		&cli.StringFlag{
			Name:  "to",
			Usage: "absolute end time (ISO8601 format)",
		},
	}
}

func (a *App) timeRange(cmd *cli.Command) (*time.Time, *time.Time, error) {
	since := cmd.String("since")
	if since == "" && cmd.String("from") == "" {
		since = a.Config.Defaults.Since
	}
	start, end, err := timerange.Parse(timerange.Options{
		Since: since,
		From:  cmd.String("from"),
		To:    cmd.String("to"),
	}, time.Now())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid time range: %w", err)
	}
	return start, end, nil
}

func alertIDArg(cmd *cli.Command) (models.AlertID, error) {
	id, err := strconv.ParseInt(cmd.Args().First(), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("a numeric alert id is required")
	}
	return models.AlertID(id), nil
}

func (a *App) runAlertsList(ctx context.Context, cmd *cli.Command) error {
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}
	r, err := a.renderer()
	if err != nil {
		return err
	}
	start, end, err := a.timeRange(cmd)
	if err != nil {
		return err
	}

	limit := int(cmd.Int("limit"))
	if limit == 0 {
		limit = a.Config.Defaults.Limit
	}
	filter := models.AlertFilter{
		Status:    models.AlertStatus(cmd.String("status")),
		Severity:  models.AlertSeverity(cmd.String("severity")),
		CreatedBy: models.UserID(cmd.Int("created-by")),
		Since:     start,
		Until:     end,
		Limit:     limit,
	}
	log.Debug("listing alerts", "filter", fmt.Sprintf("%+v", filter))

	alerts, err := apiClient.ListAlerts(ctx, filter)
	if err != nil {
		return fmt.Errorf("failed to list alerts: %w", err)
	}

	now := time.Now()
	tbl := render.Table{Headers: []string{"ID", "TITLE", "SEVERITY", "STATUS", "CHANNELS", "DELIVERED", "ACKS", "SENT"}}
	for _, alert := range alerts {
		tbl.Rows = append(tbl.Rows, []string{
			strconv.FormatInt(int64(alert.ID), 10),
			render.Truncate(alert.Title, 40),
			string(alert.Severity),
			string(alert.Status),
			joinChannels(alert.Channels),
			fmt.Sprintf("%d/%d", alert.DeliveryStats.Sent, alert.DeliveryStats.Total),
			strconv.Itoa(len(alert.Acknowledgments)),
			render.FormatTime(alert.SentAt, now),
		})
	}
	return r.Render(alerts, tbl)
}

func (a *App) runAlertsGet(ctx context.Context, cmd *cli.Command) error {
	id, err := alertIDArg(cmd)
	if err != nil {
		return err
	}
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}
	r, err := a.renderer()
	if err != nil {
		return err
	}

	alert, err := apiClient.GetAlert(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get alert: %w", err)
	}
	return r.Render(alert, alertDetailTable(alert))
}

func alertDetailTable(alert *models.Alert) render.Table {
	now := time.Now()
	created := alert.CreatedAt
	return render.Table{
		Headers: []string{"FIELD", "VALUE"},
		Rows: [][]string{
			{"ID", strconv.FormatInt(int64(alert.ID), 10)},
			{"Title", alert.Title},
			{"Message", alert.Message},
			{"Severity", string(alert.Severity)},
			{"Status", string(alert.Status)},
			{"Channels", joinChannels(alert.Channels)},
			{"Created by", strconv.FormatInt(int64(alert.CreatedBy), 10)},
			{"Created", render.FormatTime(&created, now)},
			{"Sent", render.FormatTime(alert.SentAt, now)},
			{"Cancelled", render.FormatTime(alert.CancelledAt, now)},
			{"Recipients", strconv.Itoa(alert.DeliveryStats.Total)},
			{"Delivered", strconv.Itoa(alert.DeliveryStats.Sent)},
			{"Failed", strconv.Itoa(alert.DeliveryStats.Failed)},
			{"Acknowledged", strconv.Itoa(len(alert.Acknowledgments))},
		},
	}
}

func (a *App) runAlertsCreate(ctx context.Context, cmd *cli.Command) error {
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}

	req := &models.CreateAlertRequest{
		Title:    cmd.String("title"),
		Message:  cmd.String("message"),
		Severity: models.AlertSeverity(cmd.String("severity")),
	}
	for _, ch := range cmd.StringSlice("channel") {
		req.Channels = append(req.Channels, models.Channel(ch))
	}
	targeting, err := targetingFromFlags(cmd)
	if err != nil {
		return err
	}

	if (req.Title == "" || req.Message == "" || len(req.Channels) == 0) && isTerminal() {
		if err := promptAlert(req); err != nil {
			return err
		}
	}
	if targeting == nil {
		targeting = &models.Targeting{All: true}
		log.Warn("no targeting flags given, alert will reach every user")
	}
	req.Targeting = targeting

	if cmd.Bool("draft") {
		status := models.AlertStatusDraft
		req.Status = &status
	}

	alert, err := apiClient.CreateAlert(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	if alert.Status == models.AlertStatusSent {
		fmt.Printf("%s alert %d to %d recipients (%d delivered, %d failed)\n",
			successStyle.Render("Sent"), alert.ID, alert.DeliveryStats.Total, alert.DeliveryStats.Sent, alert.DeliveryStats.Failed)
		return nil
	}
	fmt.Printf("%s alert %d as %s\n", successStyle.Render("Saved"), alert.ID, alert.Status)
	return nil
}

// targetingFromFlags returns nil when no targeting flag was given.
func targetingFromFlags(cmd *cli.Command) (*models.Targeting, error) {
	t := &models.Targeting{All: cmd.Bool("all")}
	for _, role := range cmd.StringSlice("role") {
		r := models.Role(role)
		if !r.Valid() {
			return nil, fmt.Errorf("invalid role %q", role)
		}
		t.Roles = append(t.Roles, r)
	}
	for _, raw := range cmd.StringSlice("user") {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user id %q", raw)
		}
		t.Specific = append(t.Specific, models.UserID(id))
	}
	if !t.All && len(t.Roles) == 0 && len(t.Specific) == 0 {
		return nil, nil
	}
	return t, nil
}

// promptAlert fills the missing alert fields interactively.
func promptAlert(req *models.CreateAlertRequest) error {
	severity := string(req.Severity)
	channels := make([]string, 0, len(req.Channels))
	for _, ch := range req.Channels {
		channels = append(channels, string(ch))
	}
	channelOptions := make([]string, 0, len(models.AllChannels))
	for _, ch := range models.AllChannels {
		channelOptions = append(channelOptions, string(ch))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&req.Title).
				Validate(requireText("title")),
			huh.NewText().
				Title("Message").
				Value(&req.Message).
				Validate(requireText("message")),
			huh.NewSelect[string]().
				Title("Severity").
				Options(huh.NewOptions("low", "medium", "high", "critical")...).
				Value(&severity),
			huh.NewMultiSelect[string]().
				Title("Channels").
				Options(huh.NewOptions(channelOptions...)...).
				Value(&channels).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return fmt.Errorf("pick at least one channel")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	req.Severity = models.AlertSeverity(severity)
	req.Channels = req.Channels[:0]
	for _, ch := range channels {
		req.Channels = append(req.Channels, models.Channel(ch))
	}
	return nil
}

func requireText(field string) func(string) error {
	return func(v string) error {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func (a *App) runAlertsSend(ctx context.Context, cmd *cli.Command) error {
	id, err := alertIDArg(cmd)
	if err != nil {
		return err
	}
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}

	alert, err := apiClient.SendAlert(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to send alert: %w", err)
	}
	fmt.Printf("%s alert %d to %d recipients (%d delivered, %d failed)\n",
		successStyle.Render("Sent"), alert.ID, alert.DeliveryStats.Total, alert.DeliveryStats.Sent, alert.DeliveryStats.Failed)
	return nil
}

func (a *App) runAlertsCancel(ctx context.Context, cmd *cli.Command) error {
	id, err := alertIDArg(cmd)
	if err != nil {
		return err
	}
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}

	if !cmd.Bool("yes") && isTerminal() {
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Cancel alert %d?", id)).
			Description("Recipients who already received it are not notified of the cancellation.").
			Affirmative("Cancel alert").
			Negative("Keep").
			Value(&confirmed).
			Run()
		if err != nil {
			return err
		}
		if !confirmed {
			fmt.Println(mutedStyle.Render("Aborted."))
			return nil
		}
	}

	alert, err := apiClient.CancelAlert(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to cancel alert: %w", err)
	}
	fmt.Printf("%s alert %d\n", errorStyle.Render("Cancelled"), alert.ID)
	return nil
}

func (a *App) runAlertsAck(ctx context.Context, cmd *cli.Command) error {
	id, err := alertIDArg(cmd)
	if err != nil {
		return err
	}
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}

	ack, err := apiClient.AcknowledgeAlert(ctx, id, cmd.String("notes"))
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}
	fmt.Printf("%s alert %d at %s\n", successStyle.Render("Acknowledged"), id, ack.Timestamp.Local().Format(time.RFC3339))
	return nil
}

func (a *App) runAlertsStats(ctx context.Context, cmd *cli.Command) error {
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}
	r, err := a.renderer()
	if err != nil {
		return err
	}
	start, end, err := a.timeRange(cmd)
	if err != nil {
		return err
	}

	stats, err := apiClient.GetAnalytics(ctx, models.AlertFilter{Since: start, Until: end})
	if err != nil {
		return fmt.Errorf("failed to get analytics: %w", err)
	}

	tbl := render.Table{
		Headers: []string{"METRIC", "VALUE"},
		Rows: [][]string{
			{"Alerts", strconv.Itoa(stats.TotalAlerts)},
			{"Recipients", strconv.Itoa(stats.TotalRecipients)},
			{"Delivered", strconv.Itoa(stats.SentNotifications)},
			{"Failed", strconv.Itoa(stats.FailedNotifications)},
			{"Acknowledgments", strconv.Itoa(stats.TotalAcknowledgments)},
			{"Delivery success", fmt.Sprintf("%.1f%%", stats.DeliverySuccessRate)},
		},
	}
	for _, status := range models.AllAlertStatuses {
		tbl.Rows = append(tbl.Rows, []string{"Status " + string(status), strconv.Itoa(stats.ByStatus[status])})
	}
	return r.Render(stats, tbl)
}

// incidentsCommand returns the incidents subcommand
func (a *App) incidentsCommand() *cli.Command {
	return &cli.Command{
		Name:  "incidents",
		Usage: "view reported incidents on a running server",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list incidents, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Usage: "reported, investigating, resolved or closed"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Usage: "maximum number of results"},
				},
				Action: a.runIncidentsList,
			},
		},
	}
}

func (a *App) runIncidentsList(ctx context.Context, cmd *cli.Command) error {
	apiClient, err := a.apiClient()
	if err != nil {
		return err
	}
	r, err := a.renderer()
	if err != nil {
		return err
	}

	limit := int(cmd.Int("limit"))
	if limit == 0 {
		limit = a.Config.Defaults.Limit
	}
	incidents, err := apiClient.ListIncidents(ctx, models.IncidentFilter{
		Status: models.IncidentStatus(cmd.String("status")),
		Limit:  limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list incidents: %w", err)
	}

	now := time.Now()
	tbl := render.Table{Headers: []string{"ID", "TITLE", "SEVERITY", "STATUS", "LOCATION", "RESPONSES", "ALERT", "REPORTED"}}
	for _, inc := range incidents {
		alertRef := "-"
		if inc.RelatedAlertID != nil {
			alertRef = strconv.FormatInt(int64(*inc.RelatedAlertID), 10)
		}
		reported := inc.ReportedAt
		tbl.Rows = append(tbl.Rows, []string{
			strconv.FormatInt(int64(inc.ID), 10),
			render.Truncate(inc.Title, 40),
			string(inc.Severity),
			string(inc.Status),
			render.Truncate(inc.Location, 24),
			strconv.Itoa(len(inc.Responses)),
			alertRef,
			render.FormatTime(&reported, now),
		})
	}
	return r.Render(incidents, tbl)
}

func joinChannels(channels []models.Channel) string {
	parts := make([]string, len(channels))
	for i, ch := range channels {
		parts[i] = string(ch)
	}
	return strings.Join(parts, ",")
}
