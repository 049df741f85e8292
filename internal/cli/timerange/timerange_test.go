package timerange

import (
	"strings"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{name: "seconds", input: "30s", expected: 30 * time.Second},
		{name: "minutes", input: "5m", expected: 5 * time.Minute},
		{name: "mixed", input: "1h30m", expected: 90 * time.Minute},
		{name: "days", input: "7d", expected: 7 * 24 * time.Hour},
		{name: "weeks", input: "2w", expected: 14 * 24 * time.Hour},
		{name: "uppercase", input: "15M", expected: 15 * time.Minute},
		{name: "zero", input: "0s", expected: 0},

		{name: "invalid unit", input: "5x", wantErr: true},
		{name: "no number", input: "m", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "negative", input: "-5m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseDuration(%q) expected error, got %v", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDuration(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParse(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		opts        Options
		wantStart   *time.Time
		wantEnd     *time.Time
		errContains string
	}{
		{name: "open window", opts: Options{}},
		{
			name:      "since",
			opts:      Options{Since: "1h"},
			wantStart: ptr(now.Add(-time.Hour)),
		},
		{
			name:      "since anchored to end",
			opts:      Options{Since: "2h", To: "2026-05-04T08:00:00Z"},
			wantStart: ptr(time.Date(2026, 5, 4, 6, 0, 0, 0, time.UTC)),
			wantEnd:   ptr(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)),
		},
		{
			name:      "absolute",
			opts:      Options{From: "2026-05-01T00:00:00Z", To: "now"},
			wantStart: ptr(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
			wantEnd:   ptr(now),
		},
		{name: "both relative and absolute", opts: Options{Since: "1h", From: "2026-05-01"}, errContains: "mutually exclusive"},
		{name: "invalid since", opts: Options{Since: "soon"}, errContains: "invalid 'since' duration"},
		{name: "invalid from", opts: Options{From: "yesterday"}, errContains: "invalid 'from' time"},
		{
			name:        "start after end",
			opts:        Options{From: "2026-05-02T00:00:00Z", To: "2026-05-01T00:00:00Z"},
			errContains: "start time must be before end time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, err := Parse(tt.opts, now)
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("Parse() error = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() unexpected error: %v", err)
			}
			if !sameTime(start, tt.wantStart) {
				t.Errorf("Parse() start = %v, want %v", start, tt.wantStart)
			}
			if !sameTime(end, tt.wantEnd) {
				t.Errorf("Parse() end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func ptr(t time.Time) *time.Time { return &t }

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
