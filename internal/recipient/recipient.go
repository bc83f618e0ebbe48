package recipient

import (
	"errors"
	"strings"

	"github.com/foxzi/zapdesk/internal/phone"
	"github.com/foxzi/zapdesk/internal/template"
)

// Origin records how a recipient entered the list
type Origin string

// Recipient origins
const (
	OriginCSV    Origin = "csv"
	OriginManual Origin = "manual"
)

// Errors returned by manual entry
var (
	ErrEmptyPhone   = errors.New("phone number is required")
	ErrInvalidPhone = errors.New("phone number must have at least 10 digits")
)

// Row is one decoded contact row keyed by column header
type Row map[string]string

// Recipient is a resolved campaign target
type Recipient struct {
	Phone      string   `json:"phone"`
	Name       string   `json:"name"`
	Variables  []string `json:"variables"`
	Origin     Origin   `json:"origin"`
	ManualVars []string `json:"manual_vars,omitempty"`
}

// displayName returns the "name" column, falling back to "nome"
func (r Row) displayName() string {
	if v := strings.TrimSpace(r["name"]); v != "" {
		return v
	}
	return strings.TrimSpace(r["nome"])
}

// ManualEntry is a recipient typed in by the user
type ManualEntry struct {
	Name      string
	Phone     string
	Variables string // semicolon separated, positional
}

// SplitVariables splits a semicolon separated variable list
func SplitVariables(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// AddManual validates the entry and prepends it to list.
// The entry's positional variables are frozen as ManualVars.
func AddManual(list []Recipient, entry ManualEntry, mappings template.MappingSet, vars []string) ([]Recipient, error) {
	if phone.Digits(entry.Phone) == "" {
		return list, ErrEmptyPhone
	}
	normalized := phone.Normalize(entry.Phone)
	if !phone.Valid(normalized) {
		return list, ErrInvalidPhone
	}

	r := Recipient{
		Phone:      normalized,
		Name:       strings.TrimSpace(entry.Name),
		Origin:     OriginManual,
		ManualVars: SplitVariables(entry.Variables),
	}
	r.Variables = manualVariables(r, mappings, vars)

	out := make([]Recipient, 0, len(list)+1)
	out = append(out, r)
	out = append(out, list...)
	return out, nil
}

// RemoveAt returns list without the element at i
func RemoveAt(list []Recipient, i int) []Recipient {
	if i < 0 || i >= len(list) {
		return list
	}
	out := make([]Recipient, 0, len(list)-1)
	out = append(out, list[:i]...)
	return append(out, list[i+1:]...)
}

// ClearCSV drops every csv-origin recipient
func ClearCSV(list []Recipient) []Recipient {
	return filterOrigin(list, OriginManual)
}

// Phones returns the phone numbers of list
func Phones(list []Recipient) []string {
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.Phone
	}
	return out
}

func filterOrigin(list []Recipient, origin Origin) []Recipient {
	var out []Recipient
	for _, r := range list {
		if r.Origin == origin {
			out = append(out, r)
		}
	}
	return out
}
