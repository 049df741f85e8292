package render

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

type row struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

func sampleTable() Table {
	return Table{
		Headers: []string{"ID", "TITLE", "SEVERITY"},
		Rows: [][]string{
			{"1", "Flood warning", "high"},
			{"2", "Drill", "low"},
		},
	}
}

func render(t *testing.T, format string, data any, tbl Table) string {
	t.Helper()
	var buf bytes.Buffer
	r, err := New(Options{Format: format, Out: &buf})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := r.Render(data, tbl); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	return buf.String()
}

func TestNew_UnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Error("New() expected error for unknown format")
	}
}

func TestRenderer_RenderJSON(t *testing.T) {
	out := render(t, "json", []row{{1, "Flood warning"}, {2, "Drill"}}, sampleTable())

	var parsed []row
	if err := json.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(parsed) != 2 || parsed[1].Title != "Drill" {
		t.Errorf("parsed = %+v", parsed)
	}
}

func TestRenderer_RenderJSONL(t *testing.T) {
	out := render(t, "jsonl", []row{{1, "a"}, {2, "b"}, {3, "c"}}, Table{})
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("line count = %d, want 3", len(lines))
	}
	for i, line := range lines {
		var obj row
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			t.Errorf("line %d is not valid JSON: %v", i, err)
		}
	}

	single := render(t, "jsonl", row{9, "one"}, Table{})
	if strings.Count(strings.TrimSpace(single), "\n") != 0 {
		t.Errorf("non-slice data should render as one line, got %q", single)
	}
}

func TestRenderer_RenderCSV(t *testing.T) {
	out := render(t, "csv", nil, sampleTable())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("line count = %d, want 3", len(lines))
	}
	if lines[0] != "ID,TITLE,SEVERITY" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "1,Flood warning,high" {
		t.Errorf("row = %q", lines[1])
	}
}

func TestRenderer_RenderTable(t *testing.T) {
	out := render(t, "table", nil, sampleTable())
	for _, want := range []string{"ID", "TITLE", "Flood warning", "Drill"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}

	empty := render(t, "table", nil, Table{Headers: []string{"ID"}})
	if !strings.Contains(empty, "No results found.") {
		t.Errorf("empty table output = %q", empty)
	}
}

func TestRenderer_RenderText(t *testing.T) {
	out := render(t, "text", nil, sampleTable())
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("line count = %d, want 2", len(lines))
	}
	if lines[0] != "1  Flood warning  high" {
		t.Errorf("line = %q", lines[0])
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		offset time.Duration
		want   string
	}{
		{30 * time.Second, "30s ago"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{48 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		ts := now.Add(-tt.offset)
		if got := FormatTime(&ts, now); got != tt.want {
			t.Errorf("FormatTime(-%v) = %q, want %q", tt.offset, got, tt.want)
		}
	}
	if got := FormatTime(nil, now); got != "-" {
		t.Errorf("FormatTime(nil) = %q, want -", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"a much longer title", 10, "a much ..."},
		{"abcdef", 3, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
