// Package correlate implements the index-correlation engine that keeps a
// TS document and an out-of-process translation batch in sync: a
// deterministic unit traversal, a stable identifier assigner with
// deduplication by source text, and a resumable applier that writes
// results back into the document.
//
// Export and import both replay the same traversal via [Stream]. The Nth
// unit visited during export is the Nth unit visited during any later
// import over an unmodified document; mutating the document between the
// two passes invalidates all identifiers after the mutation point.
package correlate

import (
	"fmt"
	"strings"

	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// DefaultStartIndex is the first identifier index when none is configured.
const DefaultStartIndex = 1

// Filters configures which units are eligible and how identifiers are
// assigned. The same filter values must be used for the export pass and
// every later replay pass; a mismatch silently mis-correlates results.
type Filters struct {
	// IncludeFinished also selects units whose translation is already
	// final, forcing re-translation.
	IncludeFinished bool

	// MaxEntries caps the number of assigned identifiers (first
	// occurrences, counted after deduplication). Zero means no cap.
	// Traversal stops once the cap is reached.
	MaxEntries int

	// Dedupe makes repeated source texts share the first occurrence's
	// identifier instead of consuming a new index.
	Dedupe bool

	// StartIndex is the first identifier index. Values below one are
	// treated as DefaultStartIndex.
	StartIndex int
}

// Start returns the effective start index.
func (f Filters) Start() int {
	if f.StartIndex < 1 {
		return DefaultStartIndex
	}

	return f.StartIndex
}

// Fingerprint returns a stable description of the filter values, recorded
// in checkpoint metadata so a resume with different filters is rejected.
func (f Filters) Fingerprint() string {
	return fmt.Sprintf("start=%d dedupe=%t include_finished=%t max=%d",
		f.Start(), f.Dedupe, f.IncludeFinished, f.MaxEntries)
}

// UnitRef addresses a unit by position: context index and unit index in
// document order. Positions stay valid as long as the document structure
// is unchanged.
type UnitRef struct {
	Context int
	Unit    int
}

// Resolve returns the unit a reference points at.
func Resolve(doc *tsdoc.Document, ref UnitRef) *tsdoc.Unit {
	return doc.Contexts()[ref.Context].Units()[ref.Unit]
}

// Eligible reports whether a unit can be translated: non-blank source,
// and not already final unless includeFinished is set. Draft and missing
// translations are always eligible.
func Eligible(u *tsdoc.Unit, includeFinished bool) bool {
	if strings.TrimSpace(u.Source) == "" {
		return false
	}

	if includeFinished {
		return true
	}

	return u.State() != tsdoc.StateFinal
}

// Assignment pairs a unit position with its external identifier. First is
// true when the identifier was newly assigned to this unit; false marks a
// deduplicated repeat that shares an earlier unit's identifier.
type Assignment struct {
	Ref   UnitRef
	ID    string
	First bool
}

// Stream runs the shared traversal: contexts in document order, units in
// document order, eligibility filtering, identifier assignment. It is the
// single implementation replayed by the export driver, the applier and
// the live translator — re-running it over an unchanged document yields
// the identical sequence.
func Stream(doc *tsdoc.Document, f Filters) []Assignment {
	assigner := NewAssigner(f.Start(), f.Dedupe)

	var (
		out      []Assignment
		assigned int
	)

	for ci, ctx := range doc.Contexts() {
		for ui, unit := range ctx.Units() {
			if f.MaxEntries > 0 && assigned >= f.MaxEntries {
				return out
			}

			if !Eligible(unit, f.IncludeFinished) {
				continue
			}

			id, first := assigner.Assign(unit.Source)
			out = append(out, Assignment{Ref: UnitRef{Context: ci, Unit: ui}, ID: id, First: first})

			if first {
				assigned++
			}
		}
	}

	return out
}

// Select returns the eligible unit positions in traversal order,
// projecting identifiers away. Restartable: the same document and filters
// always produce the same sequence.
func Select(doc *tsdoc.Document, f Filters) []UnitRef {
	assignments := Stream(doc, f)

	refs := make([]UnitRef, 0, len(assignments))
	for _, a := range assignments {
		refs = append(refs, a.Ref)
	}

	return refs
}
