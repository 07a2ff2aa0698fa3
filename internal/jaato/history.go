package jaato

import "encoding/json"

// History is the ordered conversation so far, the shape every provider's
// serialize_history/deserialize_history operation round-trips (spec
// §4.B, §8). Go's encoding/json already base64-encodes []byte fields
// (InlineData.Bytes), so marshaling History is sufficient to satisfy the
// "binary inline data as base64" requirement without bespoke codec code.
type History []Message

// SerializeHistory renders a History as stable JSON. Map key order inside
// FunctionCall.Args and ToolResult.Result is whatever encoding/json
// produces (sorted for map[string]any), which is already deterministic.
func SerializeHistory(h History) ([]byte, error) {
	return json.Marshal(h)
}

// DeserializeHistory parses the output of SerializeHistory back into a
// History. For every Part variant, deserialize(serialize(h)) reproduces h
// exactly: text equality, byte-for-byte InlineData after base64
// round-trip, and equivalent Args/Result maps.
func DeserializeHistory(data []byte) (History, error) {
	var h History
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, err
	}
	return h, nil
}
