package service

import (
	"encoding/json"
	"strconv"
	"strings"
)

func decodeMap(raw []byte) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// deepCopy clones a decoded JSON map through a marshal round trip.
func deepCopy(m map[string]any) map[string]any {
	raw, err := json.Marshal(m)
	if err != nil {
		return map[string]any{}
	}
	out, err := decodeMap(raw)
	if err != nil {
		return map[string]any{}
	}
	return out
}

// cleanTag strips the leading '#' from a clan or player tag; tags are
// stored normalized without it.
func cleanTag(tag string) string {
	return strings.TrimPrefix(tag, "#")
}

func strField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// numField reads a numeric field, tolerating upstream payloads that encode
// numbers as strings.
func numField(m map[string]any, key string) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func listField(m map[string]any, key string) []any {
	l, _ := m[key].([]any)
	return l
}

func mapField(m map[string]any, key string) map[string]any {
	mm, _ := m[key].(map[string]any)
	return mm
}

// round2 keeps two decimal places for the summary averages.
func round2(v float64) float64 {
	f, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', 2, 64), 64)
	if err != nil {
		return v
	}
	return f
}
