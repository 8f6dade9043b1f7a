package correlate

import "strconv"

// IDPrefix is the identifier prefix shared by export and import.
const IDPrefix = "request-"

// FormatID renders the external identifier for a counter value.
func FormatID(index int) string {
	return IDPrefix + strconv.Itoa(index)
}

// Assigner maps traversal positions to stable external identifiers of the
// form "request-<n>". With deduplication enabled, a source text seen
// before yields the first occurrence's identifier without advancing the
// counter, so identifier density is exactly one per unique eligible
// source in first-occurrence order.
type Assigner struct {
	next   int
	dedupe bool
	seen   map[string]string
}

// NewAssigner creates an assigner starting at the given index. Values
// below one are treated as DefaultStartIndex.
func NewAssigner(start int, dedupe bool) *Assigner {
	if start < 1 {
		start = DefaultStartIndex
	}

	a := &Assigner{next: start, dedupe: dedupe}
	if dedupe {
		a.seen = make(map[string]string)
	}

	return a
}

// Assign returns the identifier for the given source text. The seen map
// updates on every first occurrence, whether or not a result ever arrives
// for it; replays therefore resolve repeats to the first occurrence's
// identifier and never to a fresh index.
func (a *Assigner) Assign(source string) (id string, first bool) {
	if a.dedupe {
		if prior, ok := a.seen[source]; ok {
			return prior, false
		}
	}

	id = FormatID(a.next)
	a.next++

	if a.dedupe {
		a.seen[source] = id
	}

	return id, true
}

// NextIndex returns the counter value the next first occurrence will
// consume.
func (a *Assigner) NextIndex() int {
	return a.next
}
