package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sirenhq/siren/pkg/models"
)

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	Senders map[models.Channel]ChannelSender
	// Concurrency caps in-flight attempts; zero or negative means unbounded.
	Concurrency int
	// Timeout bounds each individual attempt.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher fans an alert out to every recipient over every requested channel.
type Dispatcher struct {
	senders     map[models.Channel]ChannelSender
	concurrency int
	timeout     time.Duration
	log         *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	senders := make(map[models.Channel]ChannelSender, len(opts.Senders))
	for ch, s := range opts.Senders {
		if s != nil {
			senders[ch] = s
		}
	}
	return &Dispatcher{
		senders:     senders,
		concurrency: opts.Concurrency,
		timeout:     timeout,
		log:         logger.With("component", "notification_dispatcher"),
	}
}

type attempt struct {
	recipient models.Recipient
	channel   models.Channel
}

// Dispatch makes one delivery attempt per recipient and requested channel the
// recipient opted into. Attempts run concurrently and a failed attempt never
// affects the others. It returns once every attempt has finished.
func (d *Dispatcher) Dispatch(ctx context.Context, content Content, channels []models.Channel, recipients []models.Recipient) []Result {
	start := time.Now()
	attempts := plan(channels, recipients)
	results := make([]Result, len(attempts))

	var g errgroup.Group
	if d.concurrency > 0 {
		g.SetLimit(d.concurrency)
	}
	for i, a := range attempts {
		g.Go(func() error {
			results[i] = d.attempt(ctx, content, a)
			return nil
		})
	}
	_ = g.Wait()

	observeDispatch(time.Since(start))
	d.log.Info("dispatch complete",
		"alert_id", content.AlertID,
		"recipients", len(recipients),
		"attempts", len(attempts),
		"duration", time.Since(start))
	return results
}

func (d *Dispatcher) attempt(ctx context.Context, content Content, a attempt) (res Result) {
	res = Result{RecipientID: a.recipient.ID, Channel: a.channel}
	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Error = fmt.Sprintf("provider panic: %v", r)
		}
		observeAttempt(a.channel, res.Success)
	}()

	sender, ok := d.senders[a.channel]
	if !ok {
		res.Error = fmt.Sprintf("no provider configured for channel %q", a.channel)
		return res
	}

	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := sender.Send(attemptCtx, a.recipient, content); err != nil {
		d.log.Warn("notification failed",
			"alert_id", content.AlertID,
			"recipient_id", a.recipient.ID,
			"channel", a.channel,
			"error", err)
		res.Error = err.Error()
		return res
	}
	res.Success = true
	return res
}

// plan expands recipients × channels, keeping only channels each recipient opted into.
func plan(channels []models.Channel, recipients []models.Recipient) []attempt {
	attempts := make([]attempt, 0, len(channels)*len(recipients))
	for _, r := range recipients {
		seen := make(map[models.Channel]struct{}, len(channels))
		for _, ch := range channels {
			if _, dup := seen[ch]; dup {
				continue
			}
			seen[ch] = struct{}{}
			if !r.OptedIn(ch) {
				continue
			}
			attempts = append(attempts, attempt{recipient: r, channel: ch})
		}
	}
	return attempts
}

// Summarize folds attempt results into per-recipient delivery statistics. A recipient
// counts as sent when any of its attempts succeeded and as failed otherwise, including
// recipients that had no opted-in channel at all.
func Summarize(recipients []models.Recipient, results []Result) models.DeliveryStats {
	delivered := make(map[models.UserID]struct{}, len(recipients))
	for _, r := range results {
		if r.Success {
			delivered[r.RecipientID] = struct{}{}
		}
	}
	stats := models.DeliveryStats{Total: len(recipients)}
	for _, r := range recipients {
		if _, ok := delivered[r.ID]; ok {
			stats.Sent++
		} else {
			stats.Failed++
		}
	}
	return stats
}
