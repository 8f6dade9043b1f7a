package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Torimasen-tech/lingfang/internal/batch"
	"github.com/Torimasen-tech/lingfang/internal/prompt"
	"github.com/Torimasen-tech/lingfang/pkg/correlate"
	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// ExportCommand holds configuration and dependencies for the export command.
type ExportCommand struct {
	model           string
	systemPrompt    string
	startIndex      int
	maxEntries      int
	deduplicate     bool
	includeFinished bool
	contextMode     string
	maxLocations    int

	newRuntime runtimeFactory
}

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	return newExportCommandWithDeps(newCommandRuntime)
}

func newExportCommandWithDeps(newRuntime runtimeFactory) *cobra.Command {
	ec := &ExportCommand{newRuntime: newRuntime}

	cmd := &cobra.Command{
		Use:   "export <input.ts> <output.jsonl>",
		Short: "Export untranslated units to a JSONL request file",
		Long: "Export walks the document in order, assigns request-<n> identifiers to\n" +
			"eligible units, and writes one chat-completion request record per line.\n" +
			"Re-running export over an unmodified document yields the same identifiers.",
		Args: cobra.ExactArgs(2),
		RunE: ec.run,
	}

	cmd.Flags().StringVar(&ec.model, "model", "", "Model name stamped into request bodies (default from config)")
	cmd.Flags().StringVar(&ec.systemPrompt, "system-prompt", "", "System prompt override (default from config)")
	cmd.Flags().IntVar(&ec.startIndex, "start-index", correlate.DefaultStartIndex, "First identifier index")
	cmd.Flags().IntVar(&ec.maxEntries, "max-entries", 0, "Cap on assigned identifiers (0 = no cap)")
	cmd.Flags().BoolVar(&ec.deduplicate, "deduplicate", true, "Repeated source texts share one identifier")
	cmd.Flags().BoolVar(&ec.includeFinished, "include-finished", false, "Also export units already translated")
	cmd.Flags().StringVar(&ec.contextMode, "context-mode", "", "Prompt context richness: full, compact, minimal (default from config)")
	cmd.Flags().IntVar(&ec.maxLocations, "max-locations", prompt.DefaultMaxLocations, "Location references per prompt (0 = omit, negative = all)")

	return cmd
}

func (ec *ExportCommand) run(cmd *cobra.Command, args []string) error {
	rt, err := ec.newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	inputPath, outputPath := args[0], args[1]

	model := rt.cfg.Model.Name
	if cmd.Flags().Changed("model") {
		model = ec.model
	}

	systemPrompt := rt.cfg.Prompt.System
	if cmd.Flags().Changed("system-prompt") {
		systemPrompt = ec.systemPrompt
	}

	contextMode := rt.cfg.Prompt.ContextMode
	if cmd.Flags().Changed("context-mode") {
		contextMode = ec.contextMode
	}

	mode, err := prompt.ParseMode(contextMode)
	if err != nil {
		return err
	}

	maxLocations := rt.cfg.Prompt.MaxLocations
	if cmd.Flags().Changed("max-locations") {
		maxLocations = ec.maxLocations
	}

	doc, err := tsdoc.Load(inputPath)
	if err != nil {
		return err
	}

	filters := correlate.Filters{
		IncludeFinished: ec.includeFinished,
		MaxEntries:      ec.maxEntries,
		Dedupe:          ec.deduplicate,
		StartIndex:      ec.startIndex,
	}

	builder := prompt.Builder{Mode: mode, MaxLocations: maxLocations}

	rt.logger.Debug("document loaded",
		"path", inputPath, "units", doc.UnitCount(), "filters", filters.Fingerprint())

	outFile, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	count, writeErr := writeRequests(outFile, doc, filters, builder, model, systemPrompt)

	closeErr := outFile.Close()
	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("close output: %w", closeErr)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d translation requests to %s (starting index %d).\n",
		count, outputPath, filters.Start())

	return nil
}

// writeRequests emits one request record per assigned identifier.
// Deduplicated repeats ride on their first occurrence's record.
func writeRequests(
	w io.Writer,
	doc *tsdoc.Document,
	filters correlate.Filters,
	builder prompt.Builder,
	model, systemPrompt string,
) (int, error) {
	writer := batch.NewWriter(w)

	for _, a := range correlate.Stream(doc, filters) {
		if !a.First {
			continue
		}

		unit := correlate.Resolve(doc, a.Ref)

		err := writer.Write(batch.NewRequest(a.ID, model, systemPrompt, builder.UserPrompt(unit)))
		if err != nil {
			return writer.Count(), err
		}
	}

	err := writer.Flush()
	if err != nil {
		return writer.Count(), err
	}

	return writer.Count(), nil
}
