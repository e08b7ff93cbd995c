package metadata

import "time"

type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"` // string, text, int, bigint, decimal, boolean, uuid, timestamp, date, json
	Nullable bool   `json:"nullable,omitempty"`
}

// IsTemporal returns true for fields compared with the date operators.
func (f Field) IsTemporal() bool {
	return f.Type == "timestamp" || f.Type == "date"
}

// Coerce converts a decoded JSON value to the Go type date operators
// compare against. Values that do not parse are returned unchanged.
func (f Field) Coerce(v any) any {
	if !f.IsTemporal() {
		return v
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return v
}
