package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Torimasen-tech/lingfang/internal/llm"
	"github.com/Torimasen-tech/lingfang/internal/observability"
	"github.com/Torimasen-tech/lingfang/internal/prompt"
	"github.com/Torimasen-tech/lingfang/internal/tmcache"
	"github.com/Torimasen-tech/lingfang/pkg/checkpoint"
	"github.com/Torimasen-tech/lingfang/pkg/config"
	"github.com/Torimasen-tech/lingfang/pkg/correlate"
	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// chatClient is the completion surface the live loop needs.
type chatClient interface {
	Chat(ctx context.Context, system, user string) (string, error)
}

// chatClientFactory builds the chat client for a run. Injected so tests can
// substitute a canned translator.
type chatClientFactory func(cfg llm.Config) (chatClient, error)

func newChatClient(cfg llm.Config) (chatClient, error) {
	return llm.New(cfg)
}

// TranslateCommand holds configuration and dependencies for the translate
// command.
type TranslateCommand struct {
	provider        string
	baseURL         string
	model           string
	contextMode     string
	clearCheckpoint bool
	backupInterval  int
	metricsAddr     string

	newRuntime runtimeFactory
	newClient  chatClientFactory
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand() *cobra.Command {
	return newTranslateCommandWithDeps(newCommandRuntime, newChatClient)
}

func newTranslateCommandWithDeps(newRuntime runtimeFactory, newClient chatClientFactory) *cobra.Command {
	tc := &TranslateCommand{newRuntime: newRuntime, newClient: newClient}

	cmd := &cobra.Command{
		Use:   "translate <file.ts>",
		Short: "Translate a document in place against a live chat endpoint",
		Long: "Translate walks the document's untranslated units in order, sends each\n" +
			"source to the configured chat endpoint, and writes translations back into\n" +
			"the file. Progress survives interruption: finished units are checkpointed\n" +
			"and the document is flushed periodically, so a rerun resumes where the\n" +
			"previous run stopped.",
		Args: cobra.ExactArgs(1),
		RunE: tc.run,
	}

	cmd.Flags().StringVar(&tc.provider, "provider", "", "Chat provider: openai, ollama (default from config)")
	cmd.Flags().StringVar(&tc.baseURL, "base-url", "", "Endpoint base URL override (default from config)")
	cmd.Flags().StringVar(&tc.model, "model", "", "Model name (default from config)")
	cmd.Flags().StringVar(&tc.contextMode, "context-mode", "", "Prompt context richness: full, compact, minimal (default from config)")
	cmd.Flags().Bool("checkpoint", true, "Record finished units for crash recovery")
	cmd.Flags().Bool("resume", true, "Resume from an existing checkpoint file")
	cmd.Flags().BoolVar(&tc.clearCheckpoint, "clear-checkpoint", false, "Discard any existing checkpoint before translating")
	cmd.Flags().IntVar(&tc.backupInterval, "backup-interval", config.DefaultBackupInterval, "Flush the document every N translations")
	cmd.Flags().StringVar(&tc.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	return cmd
}

func (tc *TranslateCommand) run(cmd *cobra.Command, args []string) error {
	rt, err := tc.newRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	docPath := args[0]

	llmCfg := rt.cfg.LLMConfig()
	if cmd.Flags().Changed("provider") {
		llmCfg.Provider = tc.provider
	}

	if cmd.Flags().Changed("base-url") {
		llmCfg.BaseURL = tc.baseURL
	}

	if cmd.Flags().Changed("model") {
		llmCfg.Model = tc.model
	}

	contextMode := rt.cfg.Prompt.ContextMode
	if cmd.Flags().Changed("context-mode") {
		contextMode = tc.contextMode
	}

	mode, err := prompt.ParseMode(contextMode)
	if err != nil {
		return err
	}

	doc, err := tsdoc.Load(docPath)
	if err != nil {
		return err
	}

	// Identifiers are not emitted anywhere in a live run; dedup only makes
	// repeated sources reuse the first occurrence's translation.
	filters := correlate.Filters{Dedupe: true}

	assignments := correlate.Stream(doc, filters)
	if len(assignments) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "Translated 0 units in %s (nothing to do).\n", docPath)

		return nil
	}

	store, err := tc.openCheckpoint(cmd, rt.cfg, docPath, doc, filters)
	if err != nil {
		return err
	}

	client, err := tc.newClient(llmCfg)
	if err != nil {
		return err
	}

	cache, err := openCache(rt.cfg, rt.logger)
	if err != nil {
		return err
	}

	if cache != nil {
		defer func() {
			closeErr := cache.Close()
			if closeErr != nil {
				rt.logger.Warn("cache close failed", "error", closeErr)
			}
		}()
	}

	metrics, cleanup, err := tc.setupMetrics(rt)
	if err != nil {
		return err
	}
	defer cleanup()

	backupInterval := tc.backupInterval
	if !cmd.Flags().Changed("backup-interval") {
		backupInterval = rt.cfg.Checkpoint.BackupInterval
	}

	run := &translateRun{
		doc:     doc,
		client:  client,
		builder: prompt.Builder{Mode: mode, MaxLocations: rt.cfg.Prompt.MaxLocations},
		system:  rt.cfg.Prompt.System,
		model:   llmCfg.Model,
		store:   store,
		cache:   cache,
		metrics: metrics,
		tracer:  rt.providers.Tracer,
		logger:  rt.logger,
		flush: func() error {
			return doc.WriteFile(docPath)
		},
		flushEvery: backupInterval,
		bar: progressbar.NewOptions(len(assignments),
			progressbar.OptionSetDescription("translating"),
			progressbar.OptionSetWriter(cmd.ErrOrStderr()),
			progressbar.OptionShowCount(),
			progressbar.OptionSetVisibility(!isQuiet(cmd)),
		),
	}

	progressf(cmd, "starting translate: %d units pending model=%s provider=%s",
		len(assignments), llmCfg.Model, llmCfg.Provider)

	startedAt := time.Now()

	report, err := run.loop(cmd.Context(), assignments)
	if err != nil {
		// Everything flushed so far stays in the document; a rerun
		// re-derives the units past the last flush.
		return err
	}

	_ = run.bar.Finish()

	if store != nil {
		err = store.FinalizeAndClear(run.flush)
	} else {
		err = run.flush()
	}

	if err != nil {
		return err
	}

	progressf(cmd, "translate finished in %s", time.Since(startedAt).Round(time.Millisecond))

	fmt.Fprintf(cmd.OutOrStdout(), "Translated %d units in %s (%d model calls, %d cache hits).\n",
		report.Updated, docPath, report.Calls, report.CacheHits)

	return nil
}

// openCheckpoint prepares the checkpoint store for a live run, pre-seeded
// with units already finished in the document. Returns nil when
// checkpointing is disabled.
func (tc *TranslateCommand) openCheckpoint(
	cmd *cobra.Command,
	cfg *config.Config,
	docPath string,
	doc *tsdoc.Document,
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

	store := checkpoint.NewStore(checkpoint.DefaultPath(docPath), docPath, filters.Fingerprint())

	if tc.clearCheckpoint {
		err := store.Clear()
		if err != nil {
			return nil, err
		}
	} else if resume && store.Exists() {
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

	seeded := store.SyncFinished(doc)
	if seeded > 0 {
		progressf(cmd, "seeded checkpoint with %d finished units", seeded)
	}

	return store, nil
}

// openCache opens the translation memory when one is configured.
func openCache(cfg *config.Config, logger *slog.Logger) (*tmcache.Cache, error) {
	if cfg.Cache.Path == "" {
		return nil, nil
	}

	cache, err := tmcache.Open(cfg.Cache.Path, cfg.Cache.FrontSize)
	if err != nil {
		return nil, err
	}

	count, err := cache.Count()
	if err == nil {
		logger.Debug("translation memory opened", "path", cfg.Cache.Path, "entries", count)
	}

	return cache, nil
}

// setupMetrics builds the run metrics, serving a scrape endpoint when an
// address is configured. Instruments must come from the server's meter; the
// global provider does not feed the scrape endpoint.
func (tc *TranslateCommand) setupMetrics(rt *commandRuntime) (*observability.RunMetrics, func(), error) {
	if tc.metricsAddr == "" {
		metrics, err := observability.NewRunMetrics(rt.providers.Meter)
		if err != nil {
			return nil, nil, err
		}

		return metrics, func() {}, nil
	}

	server, err := observability.StartMetricsServer(tc.metricsAddr)
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		closeErr := server.Close()
		if closeErr != nil {
			rt.logger.Warn("metrics server close failed", "error", closeErr)
		}
	}

	metrics, err := observability.NewRunMetrics(server.Meter())
	if err != nil {
		cleanup()

		return nil, nil, err
	}

	rt.logger.Info("metrics server listening", "addr", server.Addr())

	return metrics, cleanup, nil
}

// translateRun carries the resolved dependencies of one live run.
type translateRun struct {
	doc        *tsdoc.Document
	client     chatClient
	builder    prompt.Builder
	system     string
	model      string
	store      *checkpoint.Store
	cache      *tmcache.Cache
	metrics    *observability.RunMetrics
	tracer     trace.Tracer
	logger     *slog.Logger
	flush      func() error
	flushEvery int
	bar        *progressbar.ProgressBar
}

// translateReport summarizes one live run.
type translateReport struct {
	// Updated counts units written this run, deduplicated repeats included.
	Updated int

	// Calls counts live model invocations.
	Calls int

	// CacheHits counts lookups served by the translation memory.
	CacheHits int
}

// loop translates each pending unit in traversal order. A model failure
// aborts the run; everything already translated has been checkpointed and
// flushed, so a rerun resumes past it.
func (tr *translateRun) loop(ctx context.Context, assignments []correlate.Assignment) (*translateReport, error) {
	var (
		report     translateReport
		resolved   = make(map[string]string)
		sinceFlush int
	)

	for _, a := range assignments {
		unit := correlate.Resolve(tr.doc, a.Ref)

		text, ok := resolved[unit.Source]

		if !ok && tr.cache != nil {
			if hit, found := tr.cache.Lookup(unit.Source, tr.model); found {
				text, ok = hit, true
				report.CacheHits++
				tr.metrics.RecordCacheHit(ctx)
			}
		}

		if !ok {
			translated, err := tr.translateUnit(ctx, unit)
			if err != nil {
				return nil, err
			}

			text = translated
			report.Calls++

			if tr.cache != nil {
				storeErr := tr.cache.Store(unit.Source, tr.model, text, unit.ContextName)
				if storeErr != nil {
					tr.logger.Warn("cache store failed",
						"context", unit.ContextName, "error", storeErr)
				}
			}
		}

		unit.SetTranslation(text)
		resolved[unit.Source] = text
		report.Updated++

		if tr.store != nil {
			err := tr.store.MarkDone(unit.ContextName, unit.Source)
			if err != nil {
				tr.logger.Warn("checkpoint write failed",
					"context", unit.ContextName, "error", err)
			}
		}

		sinceFlush++
		if tr.flushEvery > 0 && sinceFlush >= tr.flushEvery {
			err := tr.flush()
			if err != nil {
				tr.logger.Warn("document flush failed", "error", err)
			} else {
				tr.metrics.RecordFlush(ctx)
			}

			sinceFlush = 0
		}

		_ = tr.bar.Add(1)
	}

	return &report, nil
}

// translateUnit sends one source through the chat endpoint.
func (tr *translateRun) translateUnit(ctx context.Context, unit *tsdoc.Unit) (string, error) {
	ctx, span := tr.tracer.Start(ctx, "translate.unit",
		trace.WithAttributes(attribute.String("model", tr.model)))
	defer span.End()

	release := tr.metrics.TrackInflight(ctx)
	defer release()

	startedAt := time.Now()

	text, err := tr.client.Chat(ctx, tr.system, tr.builder.UserPrompt(unit))
	if err != nil {
		tr.metrics.RecordError(ctx, tr.model)
		span.RecordError(err)

		return "", fmt.Errorf("translate unit in context %q: %w", unit.ContextName, err)
	}

	tr.metrics.RecordTranslation(ctx, tr.model, time.Since(startedAt))

	return text, nil
}
