package correlate

import (
	"log/slog"
	"sort"

	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// Results maps external identifiers to translated text.
type Results map[string]string

// CheckpointStore gates re-processing across interrupted runs. Implemented
// by pkg/checkpoint; a nil store disables gating.
type CheckpointStore interface {
	// IsDone reports whether the unit was finalized by a prior run.
	IsDone(contextName, source string) bool

	// MarkDone durably records the unit as finalized. Must not return
	// before the record is persisted.
	MarkDone(contextName, source string) error
}

// Options configures an apply pass.
type Options struct {
	// Strict turns missing and unused results into hard failures.
	Strict bool

	// Checkpoint skips units finalized by a prior interrupted run and
	// records each successful update. Nil disables checkpointing.
	Checkpoint CheckpointStore

	// FlushEvery flushes the document after this many updates. Zero
	// disables periodic flushes; the caller still performs the terminal
	// write.
	FlushEvery int

	// Flush writes the document to durable storage. Called every
	// FlushEvery updates; failures are logged and non-fatal, narrowing
	// the crash-safety window until the next flush succeeds.
	Flush func() error

	// Logger receives non-fatal checkpoint and flush failures. Nil uses
	// slog.Default.
	Logger *slog.Logger
}

// Report summarizes an apply pass.
type Report struct {
	// Updates counts units written this pass, duplicates included.
	Updates int

	// Skipped counts units gated off by the checkpoint store.
	Skipped int

	// Missing lists identifiers with no inbound record, in traversal
	// order, one entry per identifier. Empty in strict mode (the first
	// miss aborts).
	Missing []string

	// Unused lists inbound identifiers never consumed, sorted.
	Unused []string
}

// Apply replays the shared traversal over the live document and writes
// matched results into translation slots. Eligibility, ordering and
// identifier arithmetic are exactly those of the export pass; the caller
// must supply the same filters used at export time.
//
// Per assignment: units checkpointed by a prior run whose document write
// survived are skipped with their identifier consumed; deduplicated
// repeats copy the text resolved earlier in the pass; everything else is
// looked up by identifier. A missing result is
// fatal under strict mode, otherwise the unit is left unchanged and the
// counter discipline inside Stream keeps later identifiers aligned.
// Every successful write is checkpointed synchronously before the pass
// moves on, and the document is flushed every FlushEvery updates.
func Apply(doc *tsdoc.Document, f Filters, results Results, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		report     Report
		resolved   = make(map[string]string)
		used       = make(map[string]bool, len(results))
		sinceFlush int
	)

	commit := func(unit *tsdoc.Unit, text string) {
		unit.SetTranslation(text)
		report.Updates++

		if opts.Checkpoint != nil {
			err := opts.Checkpoint.MarkDone(unit.ContextName, unit.Source)
			if err != nil {
				logger.Warn("checkpoint write failed",
					"context", unit.ContextName, "error", err)
			}
		}

		sinceFlush++
		if opts.FlushEvery > 0 && opts.Flush != nil && sinceFlush >= opts.FlushEvery {
			err := opts.Flush()
			if err != nil {
				logger.Warn("document flush failed", "error", err)
			}

			sinceFlush = 0
		}
	}

	for _, a := range Stream(doc, f) {
		unit := Resolve(doc, a.Ref)

		// A checkpointed unit is skipped only when its document write
		// survived. A key without a final translation means the crash
		// happened between the checkpoint write and the document flush;
		// the unit is re-derived, which re-writes the same text.
		if opts.Checkpoint != nil &&
			opts.Checkpoint.IsDone(unit.ContextName, unit.Source) &&
			unit.State() == tsdoc.StateFinal {
			if _, ok := results[a.ID]; ok {
				used[a.ID] = true
			}

			report.Skipped++

			continue
		}

		if f.Dedupe && !a.First {
			if text, ok := resolved[unit.Source]; ok {
				commit(unit, text)

				continue
			}
			// First occurrence had no applied result; fall through to
			// the identifier lookup, which resolves or misses the same
			// way the first occurrence did.
		}

		text, ok := results[a.ID]
		if !ok {
			if opts.Strict {
				return nil, &MissingResultError{ID: a.ID, Available: len(results)}
			}

			if a.First {
				report.Missing = append(report.Missing, a.ID)
			}

			continue
		}

		resolved[unit.Source] = text
		used[a.ID] = true
		commit(unit, text)
	}

	for id := range results {
		if !used[id] {
			report.Unused = append(report.Unused, id)
		}
	}

	sort.Strings(report.Unused)

	if opts.Strict && len(report.Unused) > 0 {
		return nil, &UnusedResultError{IDs: report.Unused}
	}

	return &report, nil
}
