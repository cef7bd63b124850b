// Package jsonblock recovers structured payloads from generator replies.
package jsonblock

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

const fence = "```"

// Extract strips an enclosing markdown fence (optionally tagged json) and
// surrounding whitespace. Clean input is returned unchanged, so
// Extract(Extract(s)) == Extract(s). The result is not validated.
func Extract(text string) string {
	for {
		next := stripOnce(text)
		if next == text {
			return next
		}
		text = next
	}
}

func stripOnce(text string) string {
	text = strings.TrimSpace(text)

	switch {
	case strings.HasPrefix(text, fence+"json"):
		text = strings.TrimPrefix(text, fence+"json")
	case strings.HasPrefix(text, fence+"JSON"):
		text = strings.TrimPrefix(text, fence+"JSON")
	case strings.HasPrefix(text, fence):
		text = strings.TrimPrefix(text, fence)
	}
	text = strings.TrimSpace(text)

	return strings.TrimSpace(strings.TrimSuffix(text, fence))
}

// DecodeList parses a generator reply as a list of JSON objects.
//
// Accepted shapes, after Extract:
//   - [ {...}, {...} ]
//   - { "anything": [ {...}, ... ] } (an object wrapping exactly one array)
//   - { ... } (a single record)
//
// Array elements that are not objects are dropped; skipped reports how many.
func DecodeList(text string) (records []map[string]any, skipped int, err error) {
	payload := Extract(text)
	if payload == "" {
		return nil, 0, eris.New("jsonblock: empty payload")
	}

	raw, err := DecodeValue(payload)
	if err != nil {
		return nil, 0, err
	}

	switch v := raw.(type) {
	case []any:
		records, skipped = objects(v)
		return records, skipped, nil
	case map[string]any:
		if list, ok := soleArray(v); ok {
			records, skipped = objects(list)
			return records, skipped, nil
		}
		return []map[string]any{v}, 0, nil
	default:
		return nil, 0, eris.Errorf("jsonblock: expected array or object, got %T", raw)
	}
}

// DecodeValue decodes the first JSON value in payload. Integers decode as
// int64 and other numbers as float64. Trailing text after the value is
// ignored.
func DecodeValue(payload string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(payload)))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "jsonblock: decode")
	}
	return normalize(raw), nil
}

func soleArray(obj map[string]any) ([]any, bool) {
	if len(obj) != 1 {
		return nil, false
	}
	for _, v := range obj {
		list, ok := v.([]any)
		return list, ok
	}
	return nil, false
}

func objects(list []any) ([]map[string]any, int) {
	out := make([]map[string]any, 0, len(list))
	skipped := 0
	for _, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			skipped++
			continue
		}
		out = append(out, obj)
	}
	return out, skipped
}

// normalize converts json.Number leaves into int64 or float64 so that records
// re-encode with their original numeric shape.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			t[k] = normalize(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalize(inner)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
