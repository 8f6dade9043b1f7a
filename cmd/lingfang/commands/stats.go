package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Torimasen-tech/lingfang/internal/stats"
	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// StatsCommand holds configuration for the stats command.
type StatsCommand struct {
	format  string
	htmlOut string
	noColor bool
}

// NewStatsCommand creates the stats command.
func NewStatsCommand() *cobra.Command {
	sc := &StatsCommand{}

	cmd := &cobra.Command{
		Use:   "stats <file.ts>",
		Short: "Report translation coverage",
		Long:  "Stats reports finished, draft and missing translations per context.",
		Args:  cobra.ExactArgs(1),
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.format, "format", string(stats.FormatTable), "Output format: table, json, yaml")
	cmd.Flags().StringVar(&sc.htmlOut, "html", "", "Also write an HTML chart page to this path")
	cmd.Flags().BoolVar(&sc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (sc *StatsCommand) run(cmd *cobra.Command, args []string) error {
	if sc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	format, err := stats.ParseFormat(sc.format)
	if err != nil {
		return err
	}

	doc, err := tsdoc.Load(args[0])
	if err != nil {
		return err
	}

	report := stats.Collect(doc, args[0])

	err = stats.Render(cmd.OutOrStdout(), report, format)
	if err != nil {
		return err
	}

	if sc.htmlOut != "" {
		err = stats.WriteHTML(report, sc.htmlOut)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "HTML report written to %s.\n", sc.htmlOut)
	}

	return nil
}
