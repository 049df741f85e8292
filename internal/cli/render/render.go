// Package render provides output rendering for the siren CLI.
package render

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Formats lists the supported output formats.
var Formats = []string{"table", "text", "json", "jsonl", "csv"}

// Table is the tabular projection of a result.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Options configures the renderer
type Options struct {
	Format string // table, text, json, jsonl, csv
	Color  bool   // Enable colored output
	Out    io.Writer
}

// Renderer renders command results
type Renderer struct {
	opts Options
}

// New creates a new renderer
func New(opts Options) (*Renderer, error) {
	if opts.Format == "" {
		opts.Format = "table"
	}
	valid := false
	for _, f := range Formats {
		if opts.Format == f {
			valid = true
			break
		}
	}
	if !valid {
		return nil, fmt.Errorf("unknown output format: %s (valid: %s)", opts.Format, strings.Join(Formats, ", "))
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &Renderer{opts: opts}, nil
}

// Render writes data in the configured format. Structured formats encode data
// as-is; tabular formats use tbl.
func (r *Renderer) Render(data any, tbl Table) error {
	var buf bytes.Buffer
	var err error

	switch r.opts.Format {
	case "json":
		err = r.renderJSON(&buf, data)
	case "jsonl":
		err = r.renderJSONL(&buf, data)
	case "csv":
		err = r.renderCSV(&buf, tbl)
	case "text":
		err = r.renderText(&buf, tbl)
	default:
		err = r.renderTable(&buf, tbl)
	}
	if err != nil {
		return err
	}

	_, err = r.opts.Out.Write(buf.Bytes())
	return err
}

// renderJSON renders as pretty JSON
func (r *Renderer) renderJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// renderJSONL renders slices one element per line and anything else as a single line.
func (r *Renderer) renderJSONL(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		return encoder.Encode(data)
	}
	for i := 0; i < v.Len(); i++ {
		if err := encoder.Encode(v.Index(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// renderText renders one space separated line per row without headers.
func (r *Renderer) renderText(w io.Writer, tbl Table) error {
	if len(tbl.Rows) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}
	severityCol := columnIndex(tbl.Headers, "SEVERITY")
	for _, row := range tbl.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			if i == severityCol && r.opts.Color {
				cell = StyleSeverity(cell)
			}
			cells[i] = cell
		}
		fmt.Fprintln(w, strings.Join(cells, "  "))
	}
	return nil
}

// renderCSV renders as CSV
func (r *Renderer) renderCSV(w io.Writer, tbl Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(tbl.Headers); err != nil {
		return err
	}
	if err := writer.WriteAll(tbl.Rows); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// renderTable renders as a formatted table
func (r *Renderer) renderTable(w io.Writer, tbl Table) error {
	if len(tbl.Rows) == 0 {
		fmt.Fprintln(w, "No results found.")
		return nil
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("238"))).
		Headers(tbl.Headers...).
		Rows(tbl.Rows...)

	headerStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("252"))
	severityCol := columnIndex(tbl.Headers, "SEVERITY")
	t.StyleFunc(func(row, col int) lipgloss.Style {
		if row == table.HeaderRow {
			return headerStyle
		}
		if r.opts.Color && col == severityCol && row >= 0 && row < len(tbl.Rows) {
			return severityStyle(tbl.Rows[row][col])
		}
		if row%2 == 0 {
			return lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
		}
		return lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	})

	fmt.Fprintln(w, t.Render())
	return nil
}

var (
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	criticalStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	highStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("202"))
	mediumStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	lowStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
)

func severityStyle(severity string) lipgloss.Style {
	switch strings.ToLower(severity) {
	case "critical":
		return criticalStyle
	case "high":
		return highStyle
	case "medium":
		return mediumStyle
	case "low":
		return lowStyle
	default:
		return dimStyle
	}
}

// StyleSeverity colors an alert severity for terminal output.
func StyleSeverity(severity string) string {
	return severityStyle(severity).Render(severity)
}

func columnIndex(headers []string, name string) int {
	for i, h := range headers {
		if h == name {
			return i
		}
	}
	return -1
}

// FormatTime renders t relative to now, or "-" when t is nil.
func FormatTime(t *time.Time, now time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	d := now.Sub(*t)
	if d < 0 {
		d = -d
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	if n <= 3 {
		return string(runes[:n])
	}
	return string(runes[:n-3]) + "..."
}
