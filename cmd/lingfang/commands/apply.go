package commands

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"github.com/Torimasen-tech/lingfang/internal/batch"
	"github.com/Torimasen-tech/lingfang/pkg/checkpoint"
	"github.com/Torimasen-tech/lingfang/pkg/config"
	"github.com/Torimasen-tech/lingfang/pkg/correlate"
	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// ApplyCommand holds configuration and dependencies for the apply command.
type ApplyCommand struct {
	startIndex      int
	deduplicate     bool
	includeFinished bool
	strict          bool
	clearCheckpoint bool
	backupInterval  int
	dryRun          bool
	errorsOut       string

	newRuntime runtimeFactory
}

// NewApplyCommand creates the apply command.
func NewApplyCommand() *cobra.Command {
	return newApplyCommandWithDeps(newCommandRuntime)
}

func newApplyCommandWithDeps(newRuntime runtimeFactory) *cobra.Command {
	ac := &ApplyCommand{newRuntime: newRuntime}

	cmd := &cobra.Command{
		Use:   "apply <input.ts> <responses.jsonl> <output.ts>",
		Short: "Apply a JSONL result file back onto a document",
		Long: "Apply replays the export traversal over the document, so the same\n" +
			"filter flags used at export time must be passed again. Matched results\n" +
			"are written into translation slots; everything else is left untouched.",
		Args: cobra.ExactArgs(3),
		RunE: ac.run,
	}

	cmd.Flags().IntVar(&ac.startIndex, "start-index", correlate.DefaultStartIndex, "First identifier index used at export time")
	cmd.Flags().BoolVar(&ac.deduplicate, "deduplicate", true, "Repeated source texts share one identifier (must match export)")
	cmd.Flags().BoolVar(&ac.includeFinished, "include-finished", false, "Also rewrite units already translated (must match export)")
	cmd.Flags().BoolVar(&ac.strict, "strict", false, "Fail on missing or unused results")
	cmd.Flags().Bool("checkpoint", true, "Record applied units for crash recovery")
	cmd.Flags().Bool("resume", true, "Resume from an existing checkpoint file")
	cmd.Flags().BoolVar(&ac.clearCheckpoint, "clear-checkpoint", false, "Discard any existing checkpoint before applying")
	cmd.Flags().IntVar(&ac.backupInterval, "backup-interval", config.DefaultBackupInterval, "Flush the document every N updates")
	cmd.Flags().BoolVar(&ac.dryRun, "dry-run", false, "Preview changes as a diff without writing any file")
	cmd.Flags().StringVar(&ac.errorsOut, "errors-out", "", "Divert failed result records to this retry JSONL file")

	return cmd
}

func (ac *ApplyCommand) run(cmd *cobra.Command, args []string) error {
	rt, err := ac.newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	inputPath, resultsPath, outputPath := args[0], args[1], args[2]

	doc, err := tsdoc.Load(inputPath)
	if err != nil {
		return err
	}

	set, err := batch.ReadResults(resultsPath)
	if err != nil {
		return err
	}

	if len(set.Failed) > 0 {
		if ac.errorsOut == "" {
			return &batch.CollaboratorError{Failed: set.Failed}
		}

		err = batch.WriteRetryFile(ac.errorsOut, set.Failed)
		if err != nil {
			return err
		}

		rt.logger.Warn("diverted failed result records",
			"count", len(set.Failed), "path", ac.errorsOut)
	}

	if set.Usable() == 0 {
		return batch.ErrEmptyResultSet
	}

	filters := correlate.Filters{
		IncludeFinished: ac.includeFinished,
		Dedupe:          ac.deduplicate,
		StartIndex:      ac.startIndex,
	}

	rt.logger.Debug("results loaded",
		"usable", set.Usable(), "failed", len(set.Failed), "filters", filters.Fingerprint())

	if ac.dryRun {
		return ac.runDry(cmd, doc, filters, set.Results, outputPath)
	}

	backupInterval := ac.backupInterval
	if !cmd.Flags().Changed("backup-interval") {
		backupInterval = rt.cfg.Checkpoint.BackupInterval
	}

	flush := func() error {
		return doc.WriteFile(outputPath)
	}

	opts := correlate.Options{
		Strict:     ac.strict,
		FlushEvery: backupInterval,
		Flush:      flush,
		Logger:     rt.logger,
	}

	store, err := ac.openCheckpoint(cmd, rt.cfg, outputPath, filters)
	if err != nil {
		return err
	}

	if store != nil {
		opts.Checkpoint = store
	}

	report, err := correlate.Apply(doc, filters, set.Results, opts)
	if err != nil {
		return err
	}

	if store != nil {
		err = store.FinalizeAndClear(flush)
	} else {
		err = flush()
	}

	if err != nil {
		return err
	}

	ac.reportGaps(cmd, report)

	fmt.Fprintf(cmd.OutOrStdout(), "Applied %d translations to %s.\n", report.Updates, outputPath)

	return nil
}

// runDry applies in memory and prints a line diff of the would-be document.
func (ac *ApplyCommand) runDry(
	cmd *cobra.Command,
	doc *tsdoc.Document,
	filters correlate.Filters,
	results correlate.Results,
	outputPath string,
) error {
	var before bytes.Buffer

	err := doc.WriteTo(&before)
	if err != nil {
		return err
	}

	report, err := correlate.Apply(doc, filters, results, correlate.Options{Strict: ac.strict})
	if err != nil {
		return err
	}

	var after bytes.Buffer

	err = doc.WriteTo(&after)
	if err != nil {
		return err
	}

	renderDiff(cmd.OutOrStdout(), before.String(), after.String())
	ac.reportGaps(cmd, report)

	fmt.Fprintf(cmd.OutOrStdout(), "Dry run: %d translations would be applied to %s.\n",
		report.Updates, outputPath)

	return nil
}

// openCheckpoint prepares the checkpoint store for the output document, or
// returns nil when checkpointing is disabled for this invocation.
func (ac *ApplyCommand) openCheckpoint(
	cmd *cobra.Command,
	cfg *config.Config,
	outputPath string,
	filters correlate.Filters,
) (*checkpoint.Store, error) {
	enabled := true
	if cmd.Flags().Changed("checkpoint") {
		enabled = flagBool(cmd, "checkpoint")
	}

	if !enabled {
		return nil, nil
	}

	resume := cfg.Checkpoint.Resume
	if cmd.Flags().Changed("resume") {
		resume = flagBool(cmd, "resume")
	}

	store := checkpoint.NewStore(checkpoint.DefaultPath(outputPath), outputPath, filters.Fingerprint())

	if ac.clearCheckpoint {
		err := store.Clear()
		if err != nil {
			return nil, err
		}

		return store, nil
	}

	if resume && store.Exists() {
		err := store.Load()
		if err != nil {
			return nil, err
		}

		err = store.Validate()
		if err != nil {
			return nil, err
		}

		progressf(cmd, "resuming from checkpoint: %d units already done", store.Count())
	}

	return store, nil
}

// reportGaps surfaces non-strict missing and unused results.
func (ac *ApplyCommand) reportGaps(cmd *cobra.Command, report *correlate.Report) {
	if len(report.Missing) > 0 {
		progressf(cmd, "missing results for %d identifiers (first: %s)",
			len(report.Missing), report.Missing[0])
	}

	if len(report.Unused) > 0 {
		progressf(cmd, "%d results had no matching unit (first: %s)",
			len(report.Unused), report.Unused[0])
	}
}

// renderDiff prints changed lines between two document serializations.
func renderDiff(w io.Writer, before, after string) {
	dmp := diffmatchpatch.New()

	beforeChars, afterChars, lines := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(beforeChars, afterChars, false), lines)

	removed := color.New(color.FgRed)
	added := color.New(color.FgGreen)

	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}

		prefix, paint := "+", added
		if d.Type == diffmatchpatch.DiffDelete {
			prefix, paint = "-", removed
		}

		for _, line := range strings.Split(strings.TrimSuffix(d.Text, "\n"), "\n") {
			paint.Fprintf(w, "%s%s\n", prefix, line)
		}
	}
}
