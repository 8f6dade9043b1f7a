package batch

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Torimasen-tech/lingfang/pkg/correlate"
)

// contentPath is the gjson path to the translated text in an inbound record.
const contentPath = "response.body.choices.0.message.content"

// textMarkers separate the echoed prompt preamble from the translation.
// The CRLF variant is checked first, matching responses that echo Windows
// line endings.
var textMarkers = []string{"Text:\r\n", "Text:\n"}

// maxLineBytes bounds a single result line. Batch responses carry whole
// translations plus the echoed prompt, so the default scanner limit is too
// small.
const maxLineBytes = 16 * 1024 * 1024

// Sentinel errors for result loading.
var (
	ErrMalformedRecord = errors.New("malformed result record")
	ErrEmptyResultSet  = errors.New("no usable translation results")
)

// DuplicateIDError reports two inbound records sharing one identifier.
type DuplicateIDError struct {
	ID   string
	Line int
}

// Error implements the error interface.
func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate custom_id %q on line %d", e.ID, e.Line)
}

// CollaboratorError reports inbound records carrying error payloads or
// unusable responses when the caller chose not to divert them.
type CollaboratorError struct {
	Failed []FailedRecord
}

// Error implements the error interface.
func (e *CollaboratorError) Error() string {
	if len(e.Failed) == 0 {
		return "collaborator returned failed records"
	}

	first := e.Failed[0]

	return fmt.Sprintf("collaborator returned %d failed records (first: %s on line %d)",
		len(e.Failed), first.Reason, first.Line)
}

// FailedRecord is one inbound record that cannot be applied. Raw retains
// the original line bytes so the record can be re-emitted to a retry file.
type FailedRecord struct {
	Line   int
	ID     string
	Reason string
	Raw    []byte
}

// ResultSet is the outcome of reading an inbound result file.
type ResultSet struct {
	// Results maps identifiers to extracted translation text.
	Results correlate.Results

	// Failed holds records with error payloads or unusable responses, in
	// file order.
	Failed []FailedRecord
}

// Usable returns the number of applicable results.
func (s *ResultSet) Usable() int {
	return len(s.Results)
}

// ReadResults reads inbound batch result records from path. Structural
// faults (invalid JSON, missing custom_id, duplicate custom_id) abort with
// an error; records with error payloads or unusable responses are collected
// into Failed so the caller can divert them to a retry file or wrap them in
// a CollaboratorError. Rejecting an empty set with ErrEmptyResultSet is the
// caller's responsibility, after any diversion.
func ReadResults(path string) (*ResultSet, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	defer file.Close()

	set := &ResultSet{Results: make(correlate.Results)}
	seen := make(map[string]int)

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !gjson.Valid(line) {
			return nil, fmt.Errorf("%w: invalid JSON on line %d", ErrMalformedRecord, lineNo)
		}

		record := gjson.Parse(line)

		id := record.Get("custom_id").String()
		if id == "" {
			return nil, fmt.Errorf("%w: missing custom_id on line %d", ErrMalformedRecord, lineNo)
		}

		if _, dup := seen[id]; dup {
			return nil, &DuplicateIDError{ID: id, Line: lineNo}
		}

		seen[id] = lineNo

		if reason, failed := classify(record); failed {
			set.Failed = append(set.Failed, FailedRecord{
				Line:   lineNo,
				ID:     id,
				Reason: reason,
				Raw:    []byte(line),
			})

			continue
		}

		set.Results[id] = ExtractText(record.Get(contentPath).String())
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("read results: %w", scanErr)
	}

	return set, nil
}

// classify decides whether a parsed record is usable, returning the failure
// reason when it is not.
func classify(record gjson.Result) (string, bool) {
	errField := record.Get("error")
	if truthy(errField) {
		return "error payload: " + errField.Raw, true
	}

	response := record.Get("response")
	if !response.Exists() || response.Type == gjson.Null {
		return "missing response", true
	}

	choices := record.Get("response.body.choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		return "no choices", true
	}

	content := record.Get(contentPath)
	if !content.Exists() || content.Type == gjson.Null {
		return "empty content", true
	}

	return "", false
}

// truthy reports whether a field is populated: present, non-null, and not an
// empty or zero value. Pipelines emit error:null or error:{} on successful
// records; neither marks a failure.
func truthy(field gjson.Result) bool {
	switch field.Type {
	case gjson.Null:
		// Covers both JSON null and absent fields.
		return false
	case gjson.False:
		return false
	case gjson.String:
		return field.Str != ""
	case gjson.Number:
		return field.Num != 0
	default:
	}

	if field.IsObject() && len(field.Map()) == 0 {
		return false
	}

	if field.IsArray() && len(field.Array()) == 0 {
		return false
	}

	return true
}

// ExtractText returns everything after the first text marker in content.
// Responses that do not echo the marker are taken verbatim.
func ExtractText(content string) string {
	for _, marker := range textMarkers {
		if _, after, found := strings.Cut(content, marker); found {
			return after
		}
	}

	return content
}
