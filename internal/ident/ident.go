// Package ident holds the identifier type shared by backend payloads.
//
// The backend is inconsistent about identifier encoding: the same campaign may
// arrive as 42 in one payload and "42" in another. ID accepts both and always
// compares as a string.
package ident

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is an identifier decoded from either a JSON number or a JSON string
type ID string

// From coerces an arbitrary decoded value into an ID
func From(v any) ID {
	switch x := v.(type) {
	case nil:
		return ""
	case ID:
		return x
	case string:
		return ID(x)
	case float64:
		return ID(strconv.FormatFloat(x, 'f', -1, 64))
	case float32:
		return ID(strconv.FormatFloat(float64(x), 'f', -1, 32))
	case int:
		return ID(strconv.Itoa(x))
	case int64:
		return ID(strconv.FormatInt(x, 10))
	case int32:
		return ID(strconv.FormatInt(int64(x), 10))
	case uint64:
		return ID(strconv.FormatUint(x, 10))
	case json.Number:
		return numberID(x.String())
	case fmt.Stringer:
		return ID(x.String())
	default:
		return ID(fmt.Sprint(x))
	}
}

// String returns the ID as a plain string
func (id ID) String() string {
	return string(id)
}

// IsZero reports whether the ID is empty
func (id ID) IsZero() bool {
	return id == ""
}

// UnmarshalJSON accepts numbers, strings and null
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = numberID(n.String())
	return nil
}

// numberID renders integral numbers without exponent or fraction
func numberID(s string) ID {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ID(s)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
		return ID(strconv.FormatInt(int64(f), 10))
	}
	return ID(s)
}
