// Package checkpoint persists apply progress beside a TS document so an
// interrupted run can resume without repeating finished work.
package checkpoint

// FormatVersion is the current checkpoint file format version.
const FormatVersion = 1

// Key identifies one finalized translation unit by its context name and raw
// source text, the same identity the deduplicating selector uses.
type Key struct {
	Context string `json:"context"`
	Source  string `json:"source"`
}

// Metadata describes the run that produced a checkpoint file. It detects
// stale checkpoints left behind by a run over a different document or a
// different selection.
type Metadata struct {
	Document  string `json:"document"`
	Filters   string `json:"filters"`
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
}

// State is the on-disk checkpoint layout. Keys are serialized in the order
// they were first recorded.
type State struct {
	Version  int      `json:"version"`
	Metadata Metadata `json:"metadata"`
	Keys     []Key    `json:"keys"`
}
