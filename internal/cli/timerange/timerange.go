// Package timerange parses the time window flags of the siren CLI.
package timerange

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Options holds the raw window flags. All of them are optional.
type Options struct {
	Since string // Relative start (e.g., "15m", "1h", "7d")
	From  string // Absolute start
	To    string // Absolute end
}

// Parse turns the flags into an optional window relative to now. A nil bound
// means the window is open on that side.
func Parse(opts Options, now time.Time) (start, end *time.Time, err error) {
	if opts.Since != "" && opts.From != "" {
		return nil, nil, fmt.Errorf("--since and --from are mutually exclusive")
	}

	if opts.To != "" {
		t, err := parseTime(opts.To, now)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid 'to' time: %w", err)
		}
		end = &t
	}

	switch {
	case opts.From != "":
		t, err := parseTime(opts.From, now)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid 'from' time: %w", err)
		}
		start = &t
	case opts.Since != "":
		d, err := ParseDuration(opts.Since)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid 'since' duration: %w", err)
		}
		anchor := now
		if end != nil {
			anchor = *end
		}
		t := anchor.Add(-d)
		start = &t
	}

	if start != nil && end != nil && start.After(*end) {
		return nil, nil, fmt.Errorf("start time must be before end time")
	}
	return start, end, nil
}

// parseTime parses the absolute time formats accepted on the command line.
func parseTime(s string, now time.Time) (time.Time, error) {
	if strings.EqualFold(s, "now") {
		return now, nil
	}

	formats := []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
	}
	for _, format := range formats {
		if t, err := time.ParseInLocation(format, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

// durationRegex matches the day and week shorthands, e.g. "7d" or "2w".
var durationRegex = regexp.MustCompile(`^(\d+)(d|w)$`)

// ParseDuration parses a non-negative duration with support for days and weeks.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	if d, err := time.ParseDuration(s); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("duration must not be negative: %s", s)
		}
		return d, nil
	}

	matches := durationRegex.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (examples: 15m, 1h, 24h, 7d)", s)
	}

	value, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", s)
	}
	if matches[2] == "w" {
		return time.Duration(value) * 7 * 24 * time.Hour, nil
	}
	return time.Duration(value) * 24 * time.Hour, nil
}
