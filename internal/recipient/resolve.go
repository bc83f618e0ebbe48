package recipient

import (
	"strings"

	"github.com/foxzi/zapdesk/internal/phone"
	"github.com/foxzi/zapdesk/internal/template"
)

// Mode selects the recipient source
type Mode string

// Resolution modes
const (
	ModeCSV    Mode = "csv"
	ModeManual Mode = "manual"
)

// Input is the tagged source of a resolution pass.
// Build it with CSVInput or ManualInput.
type Input struct {
	mode        Mode
	rows        []Row
	phoneColumn string
}

// CSVInput resolves recipients from uploaded rows
func CSVInput(rows []Row, phoneColumn string) Input {
	return Input{mode: ModeCSV, rows: rows, phoneColumn: phoneColumn}
}

// ManualInput re-derives variables of manually entered recipients
func ManualInput() Input {
	return Input{mode: ModeManual}
}

// Mode returns the input's mode
func (in Input) Mode() Mode {
	return in.mode
}

// Stats summarizes a resolution pass
type Stats struct {
	Rows     int `json:"rows"`
	Resolved int `json:"resolved"`
	Dropped  int `json:"dropped"`
}

// Resolve derives the recipient list from the input. existing is the
// current list; recipients of the other origin are carried over unchanged.
func Resolve(in Input, mappings template.MappingSet, vars []string, existing []Recipient) []Recipient {
	out, _ := ResolveWithStats(in, mappings, vars, existing)
	return out
}

// ResolveWithStats is Resolve that also reports dropped rows
func ResolveWithStats(in Input, mappings template.MappingSet, vars []string, existing []Recipient) ([]Recipient, Stats) {
	if in.mode == ModeManual {
		return resolveManual(mappings, vars, existing)
	}
	return resolveCSV(in, mappings, vars, existing)
}

func resolveCSV(in Input, mappings template.MappingSet, vars []string, existing []Recipient) ([]Recipient, Stats) {
	stats := Stats{Rows: len(in.rows)}

	// Manual entries survive a new upload and stay on top, re-derived
	// against the current variables like in manual mode
	out := filterOrigin(existing, OriginManual)
	for i := range out {
		out[i].Variables = manualVariables(out[i], mappings, vars)
	}

	for _, row := range in.rows {
		raw := strings.TrimSpace(row[in.phoneColumn])
		if raw == "" {
			stats.Dropped++
			continue
		}
		normalized := phone.Normalize(raw)
		if !phone.Valid(normalized) {
			stats.Dropped++
			continue
		}

		out = append(out, Recipient{
			Phone:     normalized,
			Name:      row.displayName(),
			Variables: rowVariables(row, mappings, vars),
			Origin:    OriginCSV,
		})
		stats.Resolved++
	}

	return out, stats
}

func resolveManual(mappings template.MappingSet, vars []string, existing []Recipient) ([]Recipient, Stats) {
	var stats Stats
	out := make([]Recipient, len(existing))
	for i, r := range existing {
		if r.Origin == OriginManual {
			r.Variables = manualVariables(r, mappings, vars)
			stats.Rows++
			stats.Resolved++
		}
		out[i] = r
	}
	return out, stats
}

func rowVariables(row Row, mappings template.MappingSet, vars []string) []string {
	values := make([]string, len(vars))
	for i, v := range vars {
		m := mappings[v]
		switch m.Kind() {
		case template.KindSourceColumn:
			values[i] = strings.TrimSpace(row[m.Column()])
		case template.KindContactName:
			values[i] = row.displayName()
		default:
			values[i] = m.Text()
		}
	}
	return values
}

func manualVariables(r Recipient, mappings template.MappingSet, vars []string) []string {
	values := make([]string, len(vars))
	for i, v := range vars {
		m := mappings[v]
		switch m.Kind() {
		case template.KindSourceColumn:
			// No row to read from; use the positional value typed with the entry
			if i < len(r.ManualVars) {
				values[i] = r.ManualVars[i]
			}
		case template.KindContactName:
			values[i] = r.Name
		default:
			values[i] = m.Text()
		}
	}
	return values
}
