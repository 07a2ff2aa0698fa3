package jaato

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ArgsDigest computes a stable hash of a function call's arguments. The
// same args always produce the same digest regardless of Go map
// iteration order, because canonicalJSON sorts keys recursively before
// hashing. The tool name is not part of the digest.
func ArgsDigest(args map[string]any) string {
	canon := canonicalJSON(args)
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// canonicalJSON renders v as JSON with map keys sorted at every level, so
// that semantically identical values always produce byte-identical
// output.
func canonicalJSON(v any) []byte {
	var buf []byte
	buf = appendCanonical(buf, v)
	return buf
}

func appendCanonical(buf []byte, v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf = append(buf, '{')
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = appendCanonical(buf, val[k])
		}
		buf = append(buf, '}')
		return buf
	case []any:
		buf = append(buf, '[')
		for i, item := range val {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = appendCanonical(buf, item)
		}
		buf = append(buf, ']')
		return buf
	default:
		b, err := json.Marshal(val)
		if err != nil {
			// Unencodable values (e.g. channels, funcs) never legitimately
			// appear in tool args; fall back to a stable placeholder rather
			// than panicking inside a hashing helper.
			b = []byte(`"<unencodable>"`)
		}
		return append(buf, b...)
	}
}
