package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/xeipuuv/gojsonschema"

	"github.com/Torimasen-tech/lingfang/internal/batch"
)

// Record kinds accepted by --kind.
const (
	kindOutbound = "outbound"
	kindInbound  = "inbound"
	kindAuto     = "auto"
)

// complianceMax is the maximum compliance percentage.
const complianceMax = 100

// maxValidateLineBytes bounds one record line, matching the result reader.
const maxValidateLineBytes = 16 * 1024 * 1024

// Sentinel errors for the validate command.
var (
	// ErrValidationFailed reports a payload file with invalid records.
	ErrValidationFailed = errors.New("validation failed")

	// ErrUnknownKind reports an unsupported --kind value.
	ErrUnknownKind = errors.New("unknown record kind")
)

// ValidateCommand holds configuration for the validate command.
type ValidateCommand struct {
	kind    string
	noColor bool
}

// NewValidateCommand creates the validate command.
func NewValidateCommand() *cobra.Command {
	vc := &ValidateCommand{}

	cmd := &cobra.Command{
		Use:   "validate <file.jsonl>",
		Short: "Validate a JSONL payload file",
		Long: "Validate checks each record line against the embedded JSON Schema for\n" +
			"exported request files or result files. With --kind auto the shape is\n" +
			"sniffed from the first record.",
		Args: cobra.ExactArgs(1),
		RunE: vc.run,
	}

	cmd.Flags().StringVar(&vc.kind, "kind", kindAuto, "Record kind: outbound, inbound, auto")
	cmd.Flags().BoolVar(&vc.noColor, "no-color", false, "Disable colored output")

	return cmd
}

func (vc *ValidateCommand) run(cmd *cobra.Command, args []string) error {
	if vc.noColor {
		color.NoColor = true //nolint:reassign // intentional override of library global
	}

	switch vc.kind {
	case kindOutbound, kindInbound, kindAuto:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, vc.kind)
	}

	path := args[0]

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open payload: %w", err)
	}
	defer file.Close()

	return vc.validate(cmd.OutOrStdout(), file, path)
}

// validate scans the payload and prints per-line diagnostics plus a
// compliance summary.
func (vc *ValidateCommand) validate(out io.Writer, r io.Reader, path string) error {
	var (
		schema       *gojsonschema.Schema
		resolvedKind = vc.kind
		valid        int
		invalid      int
	)

	faulty := color.New(color.FgRed)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxValidateLineBytes)

	lineNo := 0

	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if schema == nil {
			if resolvedKind == kindAuto {
				resolvedKind = sniffKind(line)
			}

			compiled, err := loadSchema(resolvedKind)
			if err != nil {
				return err
			}

			schema = compiled
		}

		result, err := schema.Validate(gojsonschema.NewStringLoader(line))
		if err != nil {
			invalid++
			faulty.Fprintf(out, "line %d: invalid JSON: %v\n", lineNo, err)

			continue
		}

		if result.Valid() {
			valid++

			continue
		}

		invalid++
		faulty.Fprintf(out, "line %d: invalid record\n", lineNo)

		for _, verr := range result.Errors() {
			faulty.Fprintf(out, "  - %s: %s\n", verr.Field(), verr.Description())
		}
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		return fmt.Errorf("read payload: %w", scanErr)
	}

	total := valid + invalid
	if total == 0 {
		return fmt.Errorf("no records in %s", path)
	}

	if invalid == 0 {
		color.New(color.FgGreen).Fprintf(out, "All %d records valid (%s, %s schema).\n", total, path, resolvedKind)
		color.New(color.FgGreen).Fprintf(out, "  Compliance: 100%%\n")

		return nil
	}

	faulty.Fprintf(out, "Validation failed (%s, %s schema): %d of %d records invalid.\n",
		path, resolvedKind, invalid, total)
	color.New(color.FgYellow).Fprintf(out, "  Compliance: %d%%\n", valid*complianceMax/total)

	return fmt.Errorf("%w: %d of %d records", ErrValidationFailed, invalid, total)
}

// sniffKind guesses the record shape from a line: result records carry a
// response or error member, request records do not.
func sniffKind(line string) string {
	record := gjson.Parse(line)
	if record.Get("response").Exists() || record.Get("error").Exists() {
		return kindInbound
	}

	return kindOutbound
}

// loadSchema compiles the embedded schema for a record kind.
func loadSchema(kind string) (*gojsonschema.Schema, error) {
	name := batch.OutboundSchemaName
	if kind == kindInbound {
		name = batch.InboundSchemaName
	}

	schemaBytes, err := batch.SchemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read embedded schema: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return schema, nil
}
