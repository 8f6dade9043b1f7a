// Package stats summarizes the translation coverage of a TS document: how
// many units are finished, drafted, or missing, overall and per context.
package stats

import (
	"os"
	"time"

	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// ContextStats summarizes the units of one context.
type ContextStats struct {
	Name     string  `json:"name" yaml:"name"`
	Total    int     `json:"total" yaml:"total"`
	Finished int     `json:"finished" yaml:"finished"`
	Draft    int     `json:"draft" yaml:"draft"`
	Missing  int     `json:"missing" yaml:"missing"`
	Coverage float64 `json:"coverage" yaml:"coverage"`
}

// Report summarizes a whole document. SizeBytes and Modified are zero when
// the document was not read from a file.
type Report struct {
	Document  string         `json:"document" yaml:"document"`
	SizeBytes int64          `json:"size_bytes" yaml:"size_bytes"`
	Modified  time.Time      `json:"modified" yaml:"modified"`
	Total     int            `json:"total" yaml:"total"`
	Finished  int            `json:"finished" yaml:"finished"`
	Draft     int            `json:"draft" yaml:"draft"`
	Missing   int            `json:"missing" yaml:"missing"`
	Coverage  float64        `json:"coverage" yaml:"coverage"`
	Contexts  []ContextStats `json:"contexts" yaml:"contexts"`
}

// Collect walks doc in document order and derives coverage counts. path is
// recorded verbatim; size and modification time are filled in when it names
// an existing file.
func Collect(doc *tsdoc.Document, path string) Report {
	rep := Report{Document: path}

	if info, err := os.Stat(path); err == nil {
		rep.SizeBytes = info.Size()
		rep.Modified = info.ModTime()
	}

	for _, ctx := range doc.Contexts() {
		cs := ContextStats{Name: ctx.Name}

		for _, unit := range ctx.Units() {
			cs.Total++

			switch unit.State() {
			case tsdoc.StateFinal:
				cs.Finished++
			case tsdoc.StateDraft:
				cs.Draft++
			case tsdoc.StateMissing:
				cs.Missing++
			}
		}

		cs.Coverage = percentage(cs.Finished, cs.Total)

		rep.Total += cs.Total
		rep.Finished += cs.Finished
		rep.Draft += cs.Draft
		rep.Missing += cs.Missing
		rep.Contexts = append(rep.Contexts, cs)
	}

	rep.Coverage = percentage(rep.Finished, rep.Total)

	return rep
}

// percentage returns part/total as a percentage, zero when total is zero.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}

	return float64(part) / float64(total) * 100
}
