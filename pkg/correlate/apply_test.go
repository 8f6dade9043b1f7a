package correlate_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Torimasen-tech/lingfang/pkg/correlate"
	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// fakeStore is an in-memory CheckpointStore.
type fakeStore struct {
	done  map[string]bool
	marks []string
	fail  error
}

func storeKey(ctx, source string) string {
	return ctx + "\x1f" + source
}

func (s *fakeStore) IsDone(ctx, source string) bool {
	return s.done[storeKey(ctx, source)]
}

func (s *fakeStore) MarkDone(ctx, source string) error {
	if s.fail != nil {
		return s.fail
	}

	if s.done == nil {
		s.done = make(map[string]bool)
	}

	s.done[storeKey(ctx, source)] = true
	s.marks = append(s.marks, storeKey(ctx, source))

	return nil
}

func TestApply_WorkedExample(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	filters := correlate.Filters{Dedupe: true, StartIndex: 1}
	results := correlate.Results{"request-1": "你好", "request-2": "世界"}

	report, err := correlate.Apply(doc, filters, results, correlate.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Updates)
	assert.Empty(t, report.Missing)
	assert.Empty(t, report.Unused)

	assert.Equal(t, "你好", doc.Contexts()[0].Units()[0].TranslationText())
	assert.Equal(t, "你好", doc.Contexts()[1].Units()[0].TranslationText())
	assert.Equal(t, "世界", doc.Contexts()[2].Units()[0].TranslationText())

	for _, ctx := range doc.Contexts() {
		assert.Equal(t, tsdoc.StateFinal, ctx.Units()[0].State())
	}
}

func TestApply_RoundTripIdempotence(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	filters := correlate.Filters{Dedupe: true}
	results := correlate.Results{"request-1": "你好", "request-2": "世界"}

	first, err := correlate.Apply(doc, filters, results, correlate.Options{})
	require.NoError(t, err)
	require.Equal(t, 3, first.Updates)

	// Everything is final now, so a second pass selects nothing and
	// leaves the document as it is.
	second, err := correlate.Apply(doc, filters, results, correlate.Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, second.Updates)
	assert.ElementsMatch(t, []string{"request-1", "request-2"}, second.Unused)
	assert.Equal(t, "你好", doc.Contexts()[0].Units()[0].TranslationText())
}

func TestApply_IncludeFinishedOverwrites(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	results := correlate.Results{"request-1": "第一", "request-2": "第二", "request-3": "第三"}

	_, err := correlate.Apply(doc, correlate.Filters{}, results, correlate.Options{})
	require.NoError(t, err)

	redo := correlate.Results{"request-1": "改", "request-2": "改", "request-3": "改"}

	report, err := correlate.Apply(doc, correlate.Filters{IncludeFinished: true}, redo, correlate.Options{})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Updates)
	assert.Equal(t, "改", doc.Contexts()[0].Units()[0].TranslationText())
}

func TestApply_Strict_ExactCoverSucceeds(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	filters := correlate.Filters{Dedupe: true}
	results := correlate.Results{"request-1": "你好", "request-2": "世界"}

	report, err := correlate.Apply(doc, filters, results, correlate.Options{Strict: true})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Updates)
}

func TestApply_Strict_MissingResult(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	filters := correlate.Filters{Dedupe: true}
	results := correlate.Results{"request-1": "你好"}

	_, err := correlate.Apply(doc, filters, results, correlate.Options{Strict: true})
	require.Error(t, err)

	var missing *correlate.MissingResultError

	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "request-2", missing.ID)
	assert.Equal(t, 1, missing.Available)
}

func TestApply_Strict_UnusedResult(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	filters := correlate.Filters{Dedupe: true}
	results := correlate.Results{
		"request-1":  "你好",
		"request-2":  "世界",
		"request-99": "孤儿",
	}

	_, err := correlate.Apply(doc, filters, results, correlate.Options{Strict: true})
	require.Error(t, err)

	var unused *correlate.UnusedResultError

	require.True(t, errors.As(err, &unused))
	assert.Equal(t, []string{"request-99"}, unused.IDs)
}

func TestApply_NonStrict_PartialBatch(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	results := correlate.Results{"request-3": "世界"}

	report, err := correlate.Apply(doc, correlate.Filters{}, results, correlate.Options{})
	require.NoError(t, err)

	// Identifiers for the skipped units still advanced, so request-3
	// lands on the third unit.
	assert.Equal(t, 1, report.Updates)
	assert.Equal(t, []string{"request-1", "request-2"}, report.Missing)
	assert.Equal(t, "", doc.Contexts()[0].Units()[0].TranslationText())
	assert.Equal(t, "世界", doc.Contexts()[2].Units()[0].TranslationText())
}

func TestApply_DedupAlignment_MissingFirstOccurrence(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	filters := correlate.Filters{Dedupe: true}

	// Only the second identifier has a result. The duplicate of "Hello"
	// must resolve to request-1 (its first occurrence's identifier) and
	// miss, never steal request-2.
	results := correlate.Results{"request-2": "世界"}

	report, err := correlate.Apply(doc, filters, results, correlate.Options{})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Updates)
	assert.Equal(t, []string{"request-1"}, report.Missing)
	assert.Empty(t, report.Unused)

	assert.Equal(t, "", doc.Contexts()[0].Units()[0].TranslationText())
	assert.Equal(t, "", doc.Contexts()[1].Units()[0].TranslationText())
	assert.Equal(t, "世界", doc.Contexts()[2].Units()[0].TranslationText())
}

const checkpointTS = `<TS version="2.1">
  <context>
    <name>A</name>
    <message><source>alpha</source><translation>甲</translation></message>
    <message><source>beta</source><translation type="unfinished">乙</translation></message>
    <message><source>gamma</source></message>
  </context>
</TS>`

func TestApply_Checkpoint_SkipsFinalizedUnits(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, checkpointTS)
	store := &fakeStore{done: map[string]bool{storeKey("A", "alpha"): true}}

	filters := correlate.Filters{IncludeFinished: true}
	results := correlate.Results{"request-1": "新甲", "request-2": "乙乙", "request-3": "丙"}

	report, err := correlate.Apply(doc, filters, results, correlate.Options{
		Strict:     true,
		Checkpoint: store,
	})
	require.NoError(t, err)

	// alpha was finalized by a prior run and its write survived: skipped,
	// identifier consumed, text untouched.
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Updates)
	assert.Equal(t, "甲", doc.Contexts()[0].Units()[0].TranslationText())
	assert.Equal(t, "乙乙", doc.Contexts()[0].Units()[1].TranslationText())
}

func TestApply_Checkpoint_RederivesLostWrites(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, checkpointTS)

	// beta is checkpointed but still a draft in the document: the crash
	// hit between the checkpoint write and the document flush. It must be
	// re-derived, not skipped.
	store := &fakeStore{done: map[string]bool{storeKey("A", "beta"): true}}

	results := correlate.Results{"request-1": "乙完", "request-2": "丙"}

	report, err := correlate.Apply(doc, correlate.Filters{}, results, correlate.Options{
		Checkpoint: store,
	})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 2, report.Updates)
	assert.Equal(t, "乙完", doc.Contexts()[0].Units()[1].TranslationText())
}

func TestApply_Checkpoint_MarksEveryUpdate(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	store := &fakeStore{}

	filters := correlate.Filters{Dedupe: true}
	results := correlate.Results{"request-1": "你好", "request-2": "世界"}

	_, err := correlate.Apply(doc, filters, results, correlate.Options{Checkpoint: store})
	require.NoError(t, err)

	// Duplicate copies are checkpointed too; their composite keys differ
	// by context.
	assert.Equal(t, []string{
		storeKey("A", "Hello"),
		storeKey("B", "Hello"),
		storeKey("C", "World"),
	}, store.marks)
}

func TestApply_Checkpoint_WriteFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	store := &fakeStore{fail: errors.New("disk full")}

	results := correlate.Results{"request-1": "你好", "request-2": "世界", "request-3": "再见"}

	report, err := correlate.Apply(doc, correlate.Filters{}, results, correlate.Options{Checkpoint: store})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Updates)
}

func TestApply_PeriodicFlush(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	results := correlate.Results{"request-1": "你好", "request-2": "世界", "request-3": "再见"}

	flushes := 0
	report, err := correlate.Apply(doc, correlate.Filters{}, results, correlate.Options{
		FlushEvery: 2,
		Flush: func() error {
			flushes++

			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, report.Updates)
	assert.Equal(t, 1, flushes)
}

func TestApply_FlushFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)
	results := correlate.Results{"request-1": "你好", "request-2": "世界", "request-3": "再见"}

	report, err := correlate.Apply(doc, correlate.Filters{}, results, correlate.Options{
		FlushEvery: 1,
		Flush: func() error {
			return errors.New("flush failed")
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Updates)
}

func TestApply_EmptyResults_NonStrict(t *testing.T) {
	t.Parallel()

	doc := parseDoc(t, dedupTS)

	report, err := correlate.Apply(doc, correlate.Filters{}, correlate.Results{}, correlate.Options{})
	require.NoError(t, err)

	assert.Equal(t, 0, report.Updates)
	assert.Len(t, report.Missing, 3)
}
