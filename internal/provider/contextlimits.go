package provider

import "strings"

// contextLimitEntry pairs a model-id prefix with its context window, in
// tokens. ContextLimit picks the longest matching prefix, so the order of
// entries in a table does not affect the result.
type contextLimitEntry struct {
	prefix string
	tokens int
}

// defaultContextLimitTable is the static lookup table spec §4.B requires
// ("static lookup table with prefix-match fallback and a conservative
// default"), grounded on the shape of internal/models/catalog.go's model
// catalog (id/tier/capability metadata keyed by prefix-ish families)
// rather than its exact fields, since catalog.go models capability flags
// rather than context windows.
var defaultContextLimitTable = []contextLimitEntry{
	{"claude-opus-4", 200_000},
	{"claude-sonnet-4", 200_000},
	{"claude-3-5-sonnet", 200_000},
	{"claude-3-opus", 200_000},
	{"claude-3-sonnet", 200_000},
	{"claude-3-haiku", 200_000},
	{"claude-", 200_000},
	{"gpt-4o", 128_000},
	{"gpt-4-turbo", 128_000},
	{"gpt-4", 8_192},
	{"gpt-3.5-turbo", 16_385},
	{"o1-", 200_000},
	{"gemini-1.5-pro", 2_000_000},
	{"gemini-1.5-flash", 1_000_000},
	{"gemini-2.0", 1_000_000},
	{"gemini-", 1_000_000},
	{"anthropic.claude", 200_000},
	{"amazon.titan", 32_000},
	{"meta.llama3", 8_192},
	{"mistral.", 32_000},
}

// conservativeDefaultContextLimit is returned when no prefix in the table
// matches; chosen to be safely below the smallest limit in the table
// above so callers never over-pack a context window for an unknown
// model.
const conservativeDefaultContextLimit = 4_096

// ContextLimit resolves model's context window via longest-prefix match
// against table, falling back to conservativeDefaultContextLimit. A nil
// table uses defaultContextLimitTable.
func ContextLimit(model string, table []contextLimitEntry) int {
	if table == nil {
		table = defaultContextLimitTable
	}
	best := -1
	limit := conservativeDefaultContextLimit
	for _, entry := range table {
		if strings.HasPrefix(model, entry.prefix) && len(entry.prefix) > best {
			best = len(entry.prefix)
			limit = entry.tokens
		}
	}
	return limit
}
