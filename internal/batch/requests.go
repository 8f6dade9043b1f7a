package batch

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

// OutboundRecord is one exported request line, retained verbatim so it can
// be replayed against a live endpoint.
type OutboundRecord struct {
	Line int
	ID   string
	Raw  []byte
}

// ReadRequests reads exported request records from path in file order.
// Every record must be valid JSON with a custom_id and a body; duplicates
// and structural faults abort, since a request file is produced by this
// tool and faults mean the file was edited or truncated.
func ReadRequests(path string) ([]OutboundRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open requests: %w", err)
	}
	defer file.Close()

	var records []OutboundRecord

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

		if !record.Get("body").IsObject() {
			return nil, fmt.Errorf("%w: record %q on line %d has no body", ErrMalformedRecord, id, lineNo)
		}

		records = append(records, OutboundRecord{Line: lineNo, ID: id, Raw: []byte(line)})
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return nil, fmt.Errorf("read requests: %w", scanErr)
	}

	return records, nil
}
