package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tidwall/sjson"
)

// Retry metadata paths stamped into diverted records.
const (
	retryReasonPath = "retry.reason"
	retryLinePath   = "retry.source_line"
)

// Writer streams request or result records as JSONL.
type Writer struct {
	buf   *bufio.Writer
	enc   *json.Encoder
	count int
}

// NewWriter creates a Writer emitting one record per line to w. HTML
// escaping is disabled so markup in source strings survives byte-for-byte.
func NewWriter(w io.Writer) *Writer {
	buf := bufio.NewWriter(w)
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)

	return &Writer{buf: buf, enc: enc}
}

// Write emits one record.
func (w *Writer) Write(rec Request) error {
	err := w.enc.Encode(rec)
	if err != nil {
		return fmt.Errorf("encode request %s: %w", rec.CustomID, err)
	}

	w.count++

	return nil
}

// WriteResult emits one inbound-shaped result record.
func (w *Writer) WriteResult(res Result) error {
	err := w.enc.Encode(res)
	if err != nil {
		return fmt.Errorf("encode result %s: %w", res.CustomID, err)
	}

	w.count++

	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// Flush flushes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	err := w.buf.Flush()
	if err != nil {
		return fmt.Errorf("flush requests: %w", err)
	}

	return nil
}

// WriteRetryFile writes failed inbound records to path, one original record
// per line with retry metadata stamped in. Fields the reader did not
// understand are preserved untouched.
func WriteRetryFile(path string, failed []FailedRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create retry file: %w", err)
	}

	writeErr := writeRetryRecords(file, failed)

	closeErr := file.Close()
	if writeErr != nil {
		return writeErr
	}

	if closeErr != nil {
		return fmt.Errorf("close retry file: %w", closeErr)
	}

	return nil
}

// writeRetryRecords stamps and emits each failed record.
func writeRetryRecords(w io.Writer, failed []FailedRecord) error {
	buf := bufio.NewWriter(w)

	for _, rec := range failed {
		line, reasonErr := sjson.SetBytes(rec.Raw, retryReasonPath, rec.Reason)
		if reasonErr != nil {
			return fmt.Errorf("stamp retry reason: %w", reasonErr)
		}

		line, lineErr := sjson.SetBytes(line, retryLinePath, rec.Line)
		if lineErr != nil {
			return fmt.Errorf("stamp retry line: %w", lineErr)
		}

		_, err := buf.Write(line)
		if err != nil {
			return fmt.Errorf("write retry record: %w", err)
		}

		err = buf.WriteByte('\n')
		if err != nil {
			return fmt.Errorf("write retry record: %w", err)
		}
	}

	err := buf.Flush()
	if err != nil {
		return fmt.Errorf("flush retry records: %w", err)
	}

	return nil
}
