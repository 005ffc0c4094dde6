// Package cli renders command results for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"wsruntime/internal/runtime"
	"wsruntime/internal/size"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

var (
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#5A56E0", Dark: "#7571F9"}).Padding(0, 1)
	cellStyle     = lipgloss.NewStyle().Padding(0, 1)
	runningStyle  = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "#059669", Dark: "#10B981"})
	stoppedStyle  = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "#DC2626", Dark: "#EF4444"})
	internalStyle = cellStyle.Foreground(lipgloss.AdaptiveColor{Light: "#6B7280", Dark: "#9CA3AF"})
)

// Printer writes results to Out in the selected format.
type Printer struct {
	Format OutputFormat
	Out    io.Writer
}

// NewPrinter validates format and returns a printer writing to out.
func NewPrinter(format string, out io.Writer) (*Printer, error) {
	switch f := OutputFormat(format); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return &Printer{Format: f, Out: out}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// Runtime prints a runtime, one table row per server.
func (p *Printer) Runtime(rt *runtime.Runtime) error {
	switch p.Format {
	case OutputFormatJSON:
		return p.JSON(rt)
	case OutputFormatYAML:
		return p.YAML(rt)
	}

	statusColumn := 1
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("MACHINE", "STATUS", "MEMORY", "SERVER", "PORT", "URL")

	rows := runtimeRows(rt)
	for _, r := range rows {
		t.Row(r...)
	}
	t.StyleFunc(func(row, col int) lipgloss.Style {
		switch {
		case row == table.HeaderRow:
			return headerStyle
		case row < 0 || row >= len(rows):
			return cellStyle
		case col == statusColumn:
			return statusStyle(rows[row][col])
		case col == len(rows[row])-1 && strings.HasSuffix(rows[row][col], "(internal)"):
			return internalStyle
		}
		return cellStyle
	})

	if _, err := fmt.Fprintln(p.Out, t.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(p.Out, "%s on %s: %d %s\n", rt.Identity.WorkspaceID, rt.Infrastructure, len(rt.Machines), pluralize("machine", len(rt.Machines)))
	return err
}

func runtimeRows(rt *runtime.Runtime) [][]string {
	var rows [][]string
	for _, name := range rt.MachineNames() {
		m := rt.Machines[name]
		memory := "-"
		if m.MemoryLimit > 0 {
			memory = size.HumanMemory(m.MemoryLimit)
		}
		status := m.Status
		if status == "" {
			status = "unknown"
		}
		if len(m.Servers) == 0 {
			rows = append(rows, []string{name, status, memory, "-", "-", "-"})
			continue
		}
		for _, server := range m.ServerNames() {
			s := m.Servers[server]
			url := s.URL
			if s.Internal {
				url = "(internal)"
				if s.URL != "" {
					url = s.URL + " (internal)"
				}
			}
			rows = append(rows, []string{name, status, memory, server, strconv.Itoa(s.Port), url})
			// Machine columns are only shown on the first row of the machine.
			name, status, memory = "", "", ""
		}
	}
	return rows
}

func statusStyle(status string) lipgloss.Style {
	switch strings.ToLower(status) {
	case "running":
		return runningStyle
	case "exited", "failed", "dead", "stopped":
		return stoppedStyle
	default:
		return cellStyle
	}
}

// YAML prints v as a YAML document.
func (p *Printer) YAML(v any) error {
	enc := yaml.NewEncoder(p.Out)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to convert to YAML: %w", err)
	}
	return enc.Close()
}

// JSON prints v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Message prints a line unless the output is machine readable.
func (p *Printer) Message(format string, args ...any) {
	if p.Format != OutputFormatTable {
		return
	}
	fmt.Fprintf(p.Out, format+"\n", args...)
}

func pluralize(word string, n int) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
