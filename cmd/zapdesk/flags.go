package main

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/recipient"
	"github.com/foxzi/zapdesk/internal/template"
	"github.com/foxzi/zapdesk/internal/wizard"
)

// scheduleLayouts are accepted by --at besides RFC 3339, in local time
var scheduleLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// parseSchedule parses --at. Empty or "now" means send immediately.
func parseSchedule(s string, loc *time.Location) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "now") {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	for _, layout := range scheduleLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid time %q (want RFC 3339 or YYYY-MM-DD HH:MM)", s)
}

// recurrenceFlags are the --repeat, --every, --day and --time flags
type recurrenceFlags struct {
	Repeat string
	Every  int
	Day    int // -1 when unset; 0 is Sunday for weekly rules
	Time   string
}

// build returns nil when the campaign does not repeat
func (f recurrenceFlags) build() (*campaign.Recurrence, error) {
	kind := campaign.RecurrenceType(strings.ToLower(strings.TrimSpace(f.Repeat)))
	if kind == "" || kind == campaign.RecurrenceNone {
		return nil, nil
	}
	r := &campaign.Recurrence{
		Type:      kind,
		Interval:  f.Every,
		TimeOfDay: f.Time,
	}
	if r.Interval == 0 {
		r.Interval = 1
	}
	if f.Day >= 0 {
		day := f.Day
		r.DayOfWeekOrMonth = &day
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// parseMappings parses repeated --map var=kind:value flags
func parseMappings(flags []string) (template.MappingSet, error) {
	set := template.MappingSet{}
	for _, f := range flags {
		name, spec, ok := strings.Cut(f, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --map %q (want var=text:value, var=column:name or var=name)", f)
		}
		m, err := template.ParseMapping(spec)
		if err != nil {
			return nil, fmt.Errorf("--map %s: %w", name, err)
		}
		set[name] = m
	}
	return set, nil
}

// parseContact parses --contact "phone,name,var1;var2"
func parseContact(s string) (recipient.ManualEntry, error) {
	parts := strings.SplitN(s, ",", 3)
	entry := recipient.ManualEntry{Phone: strings.TrimSpace(parts[0])}
	if entry.Phone == "" {
		return entry, fmt.Errorf("invalid --contact %q: %w", s, recipient.ErrEmptyPhone)
	}
	if len(parts) > 1 {
		entry.Name = strings.TrimSpace(parts[1])
	}
	if len(parts) > 2 {
		entry.Variables = parts[2]
	}
	return entry, nil
}

// applyMappings sets mappings in template variable order. Unknown
// variables are reported before anything is applied.
func applyMappings(w *wizard.Wizard, set template.MappingSet) error {
	vars := w.Variables()
	for _, v := range slices.Sorted(maps.Keys(set)) {
		if !slices.Contains(vars, v) {
			return fmt.Errorf("%w: %q", wizard.ErrUnknownVariable, v)
		}
	}
	for _, v := range vars {
		if m, ok := set[v]; ok {
			if err := w.SetMapping(v, m); err != nil {
				return err
			}
		}
	}
	return nil
}
