// Package migrations embeds the numbered SQL files for each bounded context.
// Files run with search_path set to the context's schema.
package migrations

import "embed"

//go:embed billing/*.sql clinical/*.sql
var FS embed.FS

// Directory per schema. The directory name doubles as the schema name.
const (
	Billing  = "billing"
	Clinical = "clinical"
)

// Schemas lists every bounded context in migration order.
var Schemas = []string{Billing, Clinical}
