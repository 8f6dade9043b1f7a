package stats

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Torimasen-tech/lingfang/pkg/persist"
)

// Format selects a report rendering.
type Format string

// Supported formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// Coverage thresholds for highlighting.
const (
	coverageHigh = 90.0
	coverageLow  = 50.0
)

// ErrUnknownFormat reports an unsupported format name.
var ErrUnknownFormat = errors.New("unknown stats format")

// ParseFormat maps a flag value onto a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatTable, FormatJSON, FormatYAML:
		return Format(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// Render writes the report to w in the requested format. Table coloring
// follows the color package's global NoColor switch.
func Render(w io.Writer, rep Report, format Format) error {
	switch format {
	case FormatJSON:
		return persist.NewJSONCodec().Encode(w, rep)
	case FormatYAML:
		return persist.NewYAMLCodec().Encode(w, rep)
	case FormatTable:
		return renderTable(w, rep)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderTable(w io.Writer, rep Report) error {
	_, err := fmt.Fprintln(w, documentLine(rep))
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Context", "Total", "Finished", "Draft", "Missing", "Coverage"})

	for _, cs := range rep.Contexts {
		tbl.AppendRow(table.Row{
			contextLabel(cs.Name), cs.Total, cs.Finished, cs.Draft, cs.Missing, coverageCell(cs.Coverage),
		})
	}

	tbl.AppendFooter(table.Row{
		"Total", rep.Total, rep.Finished, rep.Draft, rep.Missing, coverageCell(rep.Coverage),
	})

	_, err = fmt.Fprintln(w, tbl.Render())
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}

	return nil
}

// documentLine describes the document file in one line.
func documentLine(rep Report) string {
	line := "Document: " + rep.Document

	if rep.SizeBytes > 0 {
		line += fmt.Sprintf(" (%s", humanize.Bytes(uint64(rep.SizeBytes)))

		if !rep.Modified.IsZero() {
			line += ", modified " + humanize.Time(rep.Modified)
		}

		line += ")"
	}

	return line
}

// contextLabel renders an empty context name visibly.
func contextLabel(name string) string {
	if name == "" {
		return "(unnamed)"
	}

	return name
}

// coverageCell formats a coverage percentage with a threshold color.
func coverageCell(v float64) string {
	text := fmt.Sprintf("%.1f%%", v)

	switch {
	case v >= coverageHigh:
		return color.New(color.FgGreen).Sprint(text)
	case v >= coverageLow:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return color.New(color.FgRed).Sprint(text)
	}
}
