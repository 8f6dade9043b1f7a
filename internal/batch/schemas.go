package batch

import "embed"

// SchemaFS contains the embedded JSON Schemas for request and result
// records, used by the validate command.
//
//go:embed outbound.schema.json inbound.schema.json
var SchemaFS embed.FS

// Schema file names inside SchemaFS.
const (
	OutboundSchemaName = "outbound.schema.json"
	InboundSchemaName  = "inbound.schema.json"
)
