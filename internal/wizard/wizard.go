// Package wizard drives the four-step campaign creation flow: basics,
// template, recipients and schedule. Every input change re-derives the
// recipient list and validation fails closed until each step is satisfied.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/metrics"
	"github.com/foxzi/zapdesk/internal/recipient"
	"github.com/foxzi/zapdesk/internal/template"
	"github.com/foxzi/zapdesk/internal/tracing"
)

// Step is a wizard page
type Step int

// Wizard steps in order
const (
	StepBasics Step = iota + 1
	StepTemplate
	StepRecipients
	StepSchedule
)

// Steps lists every step in order
var Steps = []Step{StepBasics, StepTemplate, StepRecipients, StepSchedule}

func (s Step) String() string {
	switch s {
	case StepBasics:
		return "basics"
	case StepTemplate:
		return "template"
	case StepRecipients:
		return "recipients"
	case StepSchedule:
		return "schedule"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// Validation errors
var (
	ErrMissingName       = errors.New("campaign name is required")
	ErrNoChannel         = errors.New("a channel must be selected")
	ErrNoTemplate        = errors.New("an approved template for the channel must be selected")
	ErrUnmappedVariables = errors.New("every template variable needs a mapping")
	ErrNoRecipients      = errors.New("at least one recipient is required")
	ErrInvalidSchedule   = errors.New("scheduled time must be in the future")
	ErrInvalidRecurrence = campaign.ErrInvalidRecurrence
	ErrInvalidAutomation = errors.New("automation needs both pipeline and stage")
	ErrUnknownStep       = errors.New("unknown wizard step")
	ErrUnknownVariable   = errors.New("unknown template variable")
	ErrUnknownColumn     = errors.New("column not present in the uploaded file")
)

// CampaignAPI is the backend surface used to submit and load campaigns
type CampaignAPI interface {
	ListCampaigns(ctx context.Context) ([]campaign.Summary, error)
	CreateCampaign(ctx context.Context, req *backend.CampaignRequest) (*backend.CampaignResponse, error)
	UpdateCampaign(ctx context.Context, id ident.ID, req *backend.CampaignRequest) (*backend.CampaignResponse, error)
	CampaignRecipients(ctx context.Context, id ident.ID) ([]backend.CampaignRecipient, error)
}

// Option configures a Wizard
type Option func(*Wizard)

// WithClock replaces time.Now for schedule validation
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

// Wizard holds the state of one campaign being created or edited.
// It is not safe for concurrent use.
type Wizard struct {
	inv *backend.Inventory
	now func() time.Time

	name     string
	channel  *template.Channel
	template *template.Template

	vars     []string
	mappings template.MappingSet

	mode        recipient.Mode
	sheet       *recipient.Sheet
	phoneColumn string
	recipients  []recipient.Recipient
	stats       recipient.Stats

	scheduledAt *time.Time
	recurrence  *campaign.Recurrence
	automation  *backend.AutomationRule

	editingID ident.ID
}

// New creates an empty wizard over the tenant's inventory
func New(inv *backend.Inventory, opts ...Option) *Wizard {
	if inv == nil {
		inv = &backend.Inventory{}
	}
	w := &Wizard{
		inv:      inv,
		now:      time.Now,
		mode:     recipient.ModeCSV,
		mappings: template.MappingSet{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetName sets the campaign name
func (w *Wizard) SetName(name string) {
	w.name = strings.TrimSpace(name)
}

// SelectChannel picks the sending channel. A selected template that is
// not eligible on the new channel is cleared along with its variables.
func (w *Wizard) SelectChannel(id ident.ID) error {
	ch, ok := w.inv.Channel(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoChannel, id)
	}
	cp := *ch
	w.channel = &cp

	if w.template != nil && !template.Eligible(w.template, w.channel) {
		w.template = nil
		w.vars = nil
		w.mappings = template.MappingSet{}
		w.resolve()
	}
	return nil
}

// AvailableTemplates lists templates usable from the selected channel
func (w *Wizard) AvailableTemplates() []template.Template {
	return template.Available(w.inv.Templates, w.channel)
}

// SelectTemplate picks the template by id or name. Variables are
// re-extracted, mappings reset to their defaults and recipients re-derived.
func (w *Wizard) SelectTemplate(idOrName string) error {
	if w.channel == nil {
		return ErrNoChannel
	}
	t, ok := w.inv.Template(idOrName)
	if !ok || !template.Eligible(t, w.channel) {
		return fmt.Errorf("%w: %s", ErrNoTemplate, idOrName)
	}
	cp := *t
	w.template = &cp
	w.vars = template.ExtractVariables(cp.Components)
	w.mappings = template.DefaultMappings(w.vars)
	w.resolve()
	return nil
}

// LoadSheet installs an uploaded contact file and switches to csv mode.
// The phone column is auto-detected.
func (w *Wizard) LoadSheet(sheet *recipient.Sheet) {
	w.sheet = sheet
	w.phoneColumn = sheet.PhoneColumn()
	w.mode = recipient.ModeCSV
	w.resolve()
}

// SetPhoneColumn overrides the detected phone column
func (w *Wizard) SetPhoneColumn(column string) error {
	if w.sheet == nil || !slices.Contains(w.sheet.Headers, column) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	w.phoneColumn = column
	w.resolve()
	return nil
}

// SetMapping changes the mapping of one variable
func (w *Wizard) SetMapping(variable string, m template.Mapping) error {
	if !slices.Contains(w.vars, variable) {
		return fmt.Errorf("%w: %q", ErrUnknownVariable, variable)
	}
	if m.Kind() == template.KindSourceColumn && w.sheet != nil && !slices.Contains(w.sheet.Headers, m.Column()) {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, m.Column())
	}
	w.mappings[variable] = m
	w.resolve()
	return nil
}

// SetMode switches between uploaded and manually entered recipients
func (w *Wizard) SetMode(mode recipient.Mode) {
	w.mode = mode
	w.resolve()
}

// AddManual validates and prepends a typed-in recipient
func (w *Wizard) AddManual(entry recipient.ManualEntry) error {
	list, err := recipient.AddManual(w.recipients, entry, w.mappings, w.vars)
	if err != nil {
		return err
	}
	w.recipients = list
	return nil
}

// RemoveRecipient drops the recipient at index i
func (w *Wizard) RemoveRecipient(i int) {
	w.recipients = recipient.RemoveAt(w.recipients, i)
}

// ClearUpload forgets the uploaded file and its recipients
func (w *Wizard) ClearUpload() {
	w.sheet = nil
	w.phoneColumn = ""
	w.recipients = recipient.ClearCSV(w.recipients)
	w.stats = recipient.Stats{}
}

// SetSchedule sets the start time; nil sends immediately
func (w *Wizard) SetSchedule(at *time.Time) {
	w.scheduledAt = at
}

// SetRecurrence sets the repeat rule; nil or type none sends once
func (w *Wizard) SetRecurrence(r *campaign.Recurrence) {
	w.recurrence = r
}

// SetAutomation sets the CRM stage rule; nil disables it
func (w *Wizard) SetAutomation(rule *backend.AutomationRule) {
	w.automation = rule
}

func (w *Wizard) Name() string { return w.name }
func (w *Wizard) Channel() *template.Channel { return w.channel }
func (w *Wizard) Template() *template.Template { return w.template }
func (w *Wizard) Variables() []string { return slices.Clone(w.vars) }
func (w *Wizard) Mappings() template.MappingSet { return w.mappings.Clone() }
func (w *Wizard) Mode() recipient.Mode { return w.mode }
func (w *Wizard) PhoneColumn() string { return w.phoneColumn }
func (w *Wizard) Recipients() []recipient.Recipient { return slices.Clone(w.recipients) }
func (w *Wizard) Stats() recipient.Stats { return w.stats }
func (w *Wizard) EditingID() ident.ID { return w.editingID }
func (w *Wizard) Automation() *backend.AutomationRule { return w.automation }

// Preview renders the template for the recipient at index i
func (w *Wizard) Preview(i int) (template.Preview, bool) {
	if w.template == nil || i < 0 || i >= len(w.recipients) {
		return template.Preview{}, false
	}
	values := template.Bind(w.vars, w.recipients[i].Variables)
	return template.Render(w.template, values), true
}

func (w *Wizard) resolve() {
	in := recipient.ManualInput()
	if w.mode == recipient.ModeCSV {
		if w.sheet == nil {
			// Nothing uploaded yet; keep whatever is there in sync with the mappings
			w.recipients, _ = recipient.ResolveWithStats(in, w.mappings, w.vars, w.recipients)
			return
		}
		in = recipient.CSVInput(w.sheet.Rows, w.phoneColumn)
	}

	var stats recipient.Stats
	w.recipients, stats = recipient.ResolveWithStats(in, w.mappings, w.vars, w.recipients)
	if in.Mode() == recipient.ModeCSV {
		w.stats = stats
		metrics.AddRecipientsResolved(string(recipient.OriginCSV), stats.Resolved, stats.Dropped)
	}
}

// Validate checks a single step
func (w *Wizard) Validate(step Step) error {
	switch step {
	case StepBasics:
		if w.name == "" {
			return ErrMissingName
		}
		if w.channel == nil {
			return ErrNoChannel
		}
	case StepTemplate:
		if w.template == nil || !template.Eligible(w.template, w.channel) {
			return ErrNoTemplate
		}
	case StepRecipients:
		if missing := w.mappings.Missing(w.vars); len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrUnmappedVariables, strings.Join(missing, ", "))
		}
		if len(w.recipients) == 0 {
			return ErrNoRecipients
		}
	case StepSchedule:
		if w.scheduledAt != nil && !w.scheduledAt.After(w.now()) {
			return ErrInvalidSchedule
		}
		if w.recurrence != nil {
			if err := w.recurrence.Validate(); err != nil {
				return err
			}
		}
		if w.automation != nil && (w.automation.PipelineID.IsZero() || w.automation.StageID.IsZero()) {
			return ErrInvalidAutomation
		}
	default:
		return fmt.Errorf("%w: %d", ErrUnknownStep, int(step))
	}
	return nil
}

// ValidateAll returns the first failing step's error
func (w *Wizard) ValidateAll() error {
	for _, s := range Steps {
		if err := w.Validate(s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

// CanSubmit reports whether every step is valid
func (w *Wizard) CanSubmit() bool {
	return w.ValidateAll() == nil
}

// Submission builds the create/update payload
func (w *Wizard) Submission() (*backend.CampaignRequest, error) {
	if err := w.ValidateAll(); err != nil {
		return nil, err
	}

	req := &backend.CampaignRequest{
		Name:             w.name,
		ChannelID:        w.channel.ID,
		TemplateID:       w.template.ID,
		TemplateName:     w.template.Name,
		TemplateLanguage: w.template.Language,
		Variables:        slices.Clone(w.vars),
		Mappings:         w.mappings.Clone(),
		Recipients:       make([]backend.CampaignRecipient, len(w.recipients)),
		ScheduledAt:      w.scheduledAt,
		Automation:       w.automation,
	}
	if req.Variables == nil {
		req.Variables = []string{}
	}
	if w.recurrence.Repeats() {
		r := *w.recurrence
		req.Recurrence = &r
	}
	for i, r := range w.recipients {
		vars := r.Variables
		if vars == nil {
			vars = []string{}
		}
		req.Recipients[i] = backend.CampaignRecipient{
			Phone:     r.Phone,
			Name:      r.Name,
			Variables: vars,
		}
	}
	return req, nil
}

// Submit creates the campaign, or updates it when editing
func (w *Wizard) Submit(ctx context.Context, api CampaignAPI) (*backend.CampaignResponse, error) {
	req, err := w.Submission()
	if err != nil {
		return nil, err
	}

	ctx, span := tracing.StartSpan(ctx, "wizard.submit",
		attribute.Int("recipients", len(req.Recipients)),
		attribute.Bool("editing", !w.editingID.IsZero()),
	)
	defer span.End()

	if w.editingID.IsZero() {
		resp, err := api.CreateCampaign(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("create campaign: %w", err)
		}
		return resp, nil
	}
	resp, err := api.UpdateCampaign(ctx, w.editingID, req)
	if err != nil {
		return nil, fmt.Errorf("update campaign %s: %w", w.editingID, err)
	}
	return resp, nil
}

// LoadExisting fills the wizard from a stored campaign. With duplicate
// the result is a new campaign; otherwise submitting updates id.
// Stored recipients come back as manual rows whose variables are kept as
// entered.
func (w *Wizard) LoadExisting(ctx context.Context, api CampaignAPI, id ident.ID, duplicate bool) error {
	list, err := api.ListCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("list campaigns: %w", err)
	}
	idx := slices.IndexFunc(list, func(s campaign.Summary) bool { return s.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", campaign.ErrNotFound, id)
	}
	summary := list[idx]

	stored, err := api.CampaignRecipients(ctx, id)
	if err != nil {
		return fmt.Errorf("campaign recipients: %w", err)
	}

	w.reset()
	w.name = summary.Name
	if duplicate {
		w.name = summary.Name + " (copy)"
	} else {
		w.editingID = id
		w.scheduledAt = summary.ScheduledAt
		if summary.Recurrence != nil {
			r := *summary.Recurrence
			w.recurrence = &r
		}
	}

	if !summary.ChannelID.IsZero() {
		if ch, ok := w.inv.Channel(summary.ChannelID); ok {
			cp := *ch
			w.channel = &cp
		}
	}
	if w.channel != nil && !summary.TemplateID.IsZero() {
		if t, ok := w.inv.Template(summary.TemplateID.String()); ok && template.Eligible(t, w.channel) {
			cp := *t
			w.template = &cp
			w.vars = template.ExtractVariables(cp.Components)
		}
	}

	// Positional stored values feed every non-name variable
	w.mappings = template.DefaultMappings(w.vars)
	for _, v := range w.vars {
		if w.mappings[v].Kind() != template.KindContactName {
			w.mappings[v] = template.SourceColumn(v)
		}
	}

	w.mode = recipient.ModeManual
	w.recipients = make([]recipient.Recipient, 0, len(stored))
	for _, s := range stored {
		w.recipients = append(w.recipients, recipient.Recipient{
			Phone:      s.Phone,
			Name:       s.Name,
			Origin:     recipient.OriginManual,
			ManualVars: slices.Clone(s.Variables),
		})
	}
	w.resolve()
	return nil
}

func (w *Wizard) reset() {
	*w = Wizard{
		inv:      w.inv,
		now:      w.now,
		mode:     recipient.ModeCSV,
		mappings: template.MappingSet{},
	}
}
