package query

import (
	"bytes"
	"encoding/json"
)

// MarshalScript encodes a snapshot for embedding in an inline <script>.
func MarshalScript(s Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return EscapeScript(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// EscapeScript rewrites <, >, &, U+2028 and U+2029 as \u escapes. It is
// applied regardless of how the payload was produced, so the result can never
// close the surrounding script element or open markup. The output is still
// valid JSON with the same meaning.
func EscapeScript(payload []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(payload))
	json.HTMLEscape(&buf, payload)
	return buf.Bytes()
}

// ParseScript decodes a payload produced by MarshalScript.
func ParseScript(payload []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}
