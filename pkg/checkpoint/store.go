package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Torimasen-tech/lingfang/pkg/persist"
	"github.com/Torimasen-tech/lingfang/pkg/tsdoc"
)

// Suffix is appended to a document path to form its default checkpoint path.
const Suffix = ".checkpoint"

// Sentinel errors for checkpoint loading and validation.
var (
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint file")
	ErrDocumentMismatch  = errors.New("checkpoint document mismatch")
	ErrFilterMismatch    = errors.New("checkpoint filter mismatch")
)

// DefaultPath returns the default checkpoint path for a document path.
func DefaultPath(docPath string) string {
	return docPath + Suffix
}

// Store tracks finalized units for one document and persists them to a
// checkpoint file. Every MarkDone rewrites the file synchronously, so the
// checkpoint is never behind the document on disk.
type Store struct {
	path     string
	document string
	filters  string
	meta     Metadata
	done     map[Key]struct{}
	order    []Key
	codec    persist.Codec
}

// NewStore creates a store writing to the given checkpoint path. The
// document path and filter fingerprint are recorded in the checkpoint
// metadata and checked by Validate when resuming from an existing file.
func NewStore(path, document, fingerprint string) *Store {
	return &Store{
		path:     path,
		document: document,
		filters:  fingerprint,
		meta:     newMetadata(document, fingerprint),
		done:     make(map[Key]struct{}),
		codec:    persist.NewJSONCodec(),
	}
}

// newMetadata stamps fresh run metadata.
func newMetadata(document, fingerprint string) Metadata {
	return Metadata{
		Document:  document,
		Filters:   fingerprint,
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Path returns the checkpoint file path.
func (s *Store) Path() string {
	return s.path
}

// RunID returns the identifier of the run that owns the checkpoint.
// Resuming from an existing file adopts the original run's identifier.
func (s *Store) RunID() string {
	return s.meta.RunID
}

// Count returns the number of finalized keys currently tracked.
func (s *Store) Count() int {
	return len(s.order)
}

// Exists reports whether the checkpoint file is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)

	return err == nil
}

// Load reads the checkpoint file into memory. A missing file is not an
// error; the store simply starts empty. A file that cannot be read or
// decoded returns ErrCorruptCheckpoint.
func (s *Store) Load() error {
	var state State

	err := persist.ReadFile(s.path, s.codec, &state)

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrCorruptCheckpoint, err)
	}

	if state.Version != FormatVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCorruptCheckpoint, state.Version)
	}

	s.meta = state.Metadata
	s.done = make(map[Key]struct{}, len(state.Keys))
	s.order = s.order[:0]

	for _, key := range state.Keys {
		s.add(key)
	}

	return nil
}

// Validate checks a loaded checkpoint against the current document path and
// filter fingerprint.
func (s *Store) Validate() error {
	if s.meta.Document != s.document {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrDocumentMismatch, s.meta.Document, s.document)
	}

	if s.meta.Filters != s.filters {
		return fmt.Errorf("%w: checkpoint has %q, got %q", ErrFilterMismatch, s.meta.Filters, s.filters)
	}

	return nil
}

// IsDone reports whether the unit identified by context name and source has
// already been finalized.
func (s *Store) IsDone(contextName, source string) bool {
	_, done := s.done[Key{Context: contextName, Source: source}]

	return done
}

// MarkDone records a finalized unit and synchronously rewrites the
// checkpoint file, so the record survives a crash that happens before the
// next document flush. Marking a key that is already recorded is a no-op.
func (s *Store) MarkDone(contextName, source string) error {
	added := s.add(Key{Context: contextName, Source: source})
	if !added {
		return nil
	}

	return s.save()
}

// SyncFinished seeds the store with every unit already finalized in the
// document, so resumed runs skip them without consulting results. The
// additions stay in memory until the next MarkDone persists the full key
// set. Returns the number of newly seeded keys.
func (s *Store) SyncFinished(doc *tsdoc.Document) int {
	seeded := 0

	for _, ctx := range doc.Contexts() {
		for _, unit := range ctx.Units() {
			if unit.State() != tsdoc.StateFinal {
				continue
			}

			if s.add(Key{Context: ctx.Name, Source: unit.Source}) {
				seeded++
			}
		}
	}

	return seeded
}

// FinalizeAndClear runs the terminal flush and then removes the checkpoint
// file. The file is kept when the flush fails, so completed work stays
// resumable.
func (s *Store) FinalizeAndClear(flush func() error) error {
	if flush != nil {
		err := flush()
		if err != nil {
			return fmt.Errorf("final flush: %w", err)
		}
	}

	return s.Clear()
}

// Clear removes the checkpoint file and resets the store to a fresh run.
func (s *Store) Clear() error {
	removeErr := os.Remove(s.path)
	if removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint: %w", removeErr)
	}

	s.meta = newMetadata(s.document, s.filters)
	s.done = make(map[Key]struct{})
	s.order = nil

	return nil
}

// add inserts a key, preserving first-recorded order. Reports whether the
// key was new.
func (s *Store) add(key Key) bool {
	_, exists := s.done[key]
	if exists {
		return false
	}

	s.done[key] = struct{}{}
	s.order = append(s.order, key)

	return true
}

// save rewrites the checkpoint file atomically with the full key set.
func (s *Store) save() error {
	state := State{
		Version:  FormatVersion,
		Metadata: s.meta,
		Keys:     s.order,
	}

	err := persist.WriteFile(s.path, s.codec, state)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	return nil
}
