package template

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MappingKind identifies the source of a variable value
type MappingKind string

// Mapping kinds
const (
	KindFixedText    MappingKind = "fixed_text"
	KindSourceColumn MappingKind = "source_column"
	KindContactName  MappingKind = "contact_name"
)

// Mapping is the value policy of one template variable.
// Construct it with FixedText, SourceColumn or ContactDisplayName.
type Mapping struct {
	kind  MappingKind
	value string
}

// FixedText yields the same literal for every recipient
func FixedText(text string) Mapping {
	return Mapping{kind: KindFixedText, value: text}
}

// SourceColumn yields the named column of the recipient's row
func SourceColumn(column string) Mapping {
	return Mapping{kind: KindSourceColumn, value: column}
}

// ContactDisplayName yields the recipient's display name
func ContactDisplayName() Mapping {
	return Mapping{kind: KindContactName}
}

// Kind returns the mapping kind. The zero Mapping reports KindFixedText.
func (m Mapping) Kind() MappingKind {
	if m.kind == "" {
		return KindFixedText
	}
	return m.kind
}

// Text returns the literal of a FixedText mapping
func (m Mapping) Text() string {
	if m.Kind() != KindFixedText {
		return ""
	}
	return m.value
}

// Column returns the column of a SourceColumn mapping
func (m Mapping) Column() string {
	if m.kind != KindSourceColumn {
		return ""
	}
	return m.value
}

func (m Mapping) String() string {
	switch m.Kind() {
	case KindSourceColumn:
		return "column:" + m.value
	case KindContactName:
		return "contact_name"
	default:
		return fmt.Sprintf("text:%q", m.value)
	}
}

type mappingJSON struct {
	Type  MappingKind `json:"type"`
	Value string      `json:"value,omitempty"`
}

// MarshalJSON encodes the mapping as {"type": ..., "value": ...}
func (m Mapping) MarshalJSON() ([]byte, error) {
	return json.Marshal(mappingJSON{Type: m.Kind(), Value: m.value})
}

// UnmarshalJSON decodes a mapping written by MarshalJSON
func (m *Mapping) UnmarshalJSON(data []byte) error {
	var raw mappingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode mapping: %w", err)
	}
	parsed, err := NewMapping(raw.Type, raw.Value)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// NewMapping builds a mapping from its kind and value
func NewMapping(kind MappingKind, value string) (Mapping, error) {
	switch kind {
	case KindFixedText, "":
		return FixedText(value), nil
	case KindSourceColumn:
		if value == "" {
			return Mapping{}, fmt.Errorf("source column mapping requires a column name")
		}
		return SourceColumn(value), nil
	case KindContactName:
		return ContactDisplayName(), nil
	default:
		return Mapping{}, fmt.Errorf("unknown mapping type: %s", kind)
	}
}

// ParseMapping parses the CLI form "text:<literal>", "column:<name>" or "name"
func ParseMapping(s string) (Mapping, error) {
	kind, value, _ := strings.Cut(s, ":")
	switch strings.ToLower(kind) {
	case "text", "fixed", "fixed_text":
		return FixedText(value), nil
	case "column", "col", "source_column":
		return NewMapping(KindSourceColumn, value)
	case "name", "contact", "contact_name":
		return ContactDisplayName(), nil
	default:
		return Mapping{}, fmt.Errorf("unknown mapping %q (want text:, column: or name)", s)
	}
}

// MappingSet assigns a mapping to each template variable
type MappingSet map[string]Mapping

// nameTokens are variables that conventionally hold the contact name
var nameTokens = []string{"1", "name", "nome"}

// DefaultMappings maps name-like variables to the contact display name and
// everything else to empty fixed text.
func DefaultMappings(vars []string) MappingSet {
	set := make(MappingSet, len(vars))
	for _, v := range vars {
		set[v] = defaultMapping(v)
	}
	return set
}

func defaultMapping(token string) Mapping {
	for _, n := range nameTokens {
		if strings.EqualFold(token, n) {
			return ContactDisplayName()
		}
	}
	return FixedText("")
}

// Complete reports whether every variable has a mapping
func (s MappingSet) Complete(vars []string) bool {
	for _, v := range vars {
		if _, ok := s[v]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the variables without a mapping, in order
func (s MappingSet) Missing(vars []string) []string {
	var missing []string
	for _, v := range vars {
		if _, ok := s[v]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}

// Reconcile keeps mappings of surviving variables and defaults new ones
func (s MappingSet) Reconcile(vars []string) MappingSet {
	out := make(MappingSet, len(vars))
	for _, v := range vars {
		if m, ok := s[v]; ok {
			out[v] = m
			continue
		}
		out[v] = defaultMapping(v)
	}
	return out
}

// Clone returns a shallow copy of the set
func (s MappingSet) Clone() MappingSet {
	out := make(MappingSet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}
