package wizard

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/recipient"
	"github.com/foxzi/zapdesk/internal/template"
)

// draftVersion guards Restore against payloads written by a newer layout
const draftVersion = 1

type draft struct {
	Version     int                     `json:"version"`
	Name        string                  `json:"name"`
	ChannelID   ident.ID                `json:"channel_id,omitempty"`
	TemplateID  ident.ID                `json:"template_id,omitempty"`
	Mappings    template.MappingSet     `json:"mappings,omitempty"`
	Mode        recipient.Mode          `json:"mode"`
	Sheet       *recipient.Sheet        `json:"sheet,omitempty"`
	PhoneColumn string                  `json:"phone_column,omitempty"`
	Recipients  []recipient.Recipient   `json:"recipients"`
	ScheduledAt *time.Time              `json:"scheduled_at,omitempty"`
	Recurrence  *campaign.Recurrence    `json:"recurrence,omitempty"`
	Automation  *backend.AutomationRule `json:"automation,omitempty"`
	EditingID   ident.ID                `json:"editing_id,omitempty"`
}

// Snapshot serializes the wizard state for later Restore
func (w *Wizard) Snapshot() ([]byte, error) {
	d := draft{
		Version:     draftVersion,
		Name:        w.name,
		Mappings:    w.mappings,
		Mode:        w.mode,
		Sheet:       w.sheet,
		PhoneColumn: w.phoneColumn,
		Recipients:  w.recipients,
		ScheduledAt: w.scheduledAt,
		Recurrence:  w.recurrence,
		Automation:  w.automation,
		EditingID:   w.editingID,
	}
	if w.channel != nil {
		d.ChannelID = w.channel.ID
	}
	if w.template != nil {
		d.TemplateID = w.template.ID
	}
	return json.Marshal(d)
}

// Restore replaces the wizard state with a snapshot. Channel and template
// are looked up in the current inventory; ones that disappeared or are no
// longer eligible stay unselected, so validation fails until re-picked.
func (w *Wizard) Restore(data []byte) error {
	var d draft
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode draft: %w", err)
	}
	if d.Version > draftVersion {
		return fmt.Errorf("draft version %d is not supported", d.Version)
	}

	w.reset()
	w.name = d.Name
	w.mode = d.Mode
	if w.mode == "" {
		w.mode = recipient.ModeCSV
	}
	w.sheet = d.Sheet
	w.phoneColumn = d.PhoneColumn
	w.recipients = d.Recipients
	w.scheduledAt = d.ScheduledAt
	w.recurrence = d.Recurrence
	w.automation = d.Automation
	w.editingID = d.EditingID

	if !d.ChannelID.IsZero() {
		if ch, ok := w.inv.Channel(d.ChannelID); ok {
			cp := *ch
			w.channel = &cp
		}
	}
	if w.channel != nil && !d.TemplateID.IsZero() {
		if t, ok := w.inv.Template(d.TemplateID.String()); ok && template.Eligible(t, w.channel) {
			cp := *t
			w.template = &cp
			w.vars = template.ExtractVariables(cp.Components)
		}
	}

	if d.Mappings == nil {
		d.Mappings = template.MappingSet{}
	}
	w.mappings = d.Mappings.Reconcile(w.vars)
	w.resolve()
	return nil
}
