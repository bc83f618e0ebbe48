package backend

import (
	"time"

	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/template"
)

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the bearer token and the signed-in user
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// User is the signed-in operator
type User struct {
	ID       ident.ID `json:"id"`
	Name     string   `json:"name"`
	Email    string   `json:"email"`
	TenantID ident.ID `json:"tenant_id"`
	Role     string   `json:"role,omitempty"`
}

// Inventory is the channel and template catalogue of a tenant
type Inventory struct {
	Channels  []template.Channel  `json:"channels"`
	Templates []template.Template `json:"templates"`
}

// Channel returns the channel with the given id
func (inv *Inventory) Channel(id ident.ID) (*template.Channel, bool) {
	for i := range inv.Channels {
		if inv.Channels[i].ID == id {
			return &inv.Channels[i], true
		}
	}
	return nil, false
}

// Template returns the template with the given id or name
func (inv *Inventory) Template(idOrName string) (*template.Template, bool) {
	for i := range inv.Templates {
		t := &inv.Templates[i]
		if t.ID.String() == idOrName || t.Name == idOrName {
			return t, true
		}
	}
	return nil, false
}

// CampaignRecipient is one target in a campaign payload
type CampaignRecipient struct {
	Phone     string   `json:"phone"`
	Name      string   `json:"name"`
	Variables []string `json:"variables"`
	Status    string   `json:"status,omitempty"`
}

// AutomationRule moves a contact into a CRM stage when the campaign reaches it
type AutomationRule struct {
	PipelineID ident.ID `json:"pipeline_id"`
	StageID    ident.ID `json:"stage_id"`
}

// CampaignRequest creates or updates a campaign
type CampaignRequest struct {
	Name             string               `json:"name"`
	ChannelID        ident.ID             `json:"channel_id"`
	TemplateID       ident.ID             `json:"template_id"`
	TemplateName     string               `json:"template_name"`
	TemplateLanguage string               `json:"template_language,omitempty"`
	Variables        []string             `json:"variables"`
	Mappings         template.MappingSet  `json:"variable_mappings,omitempty"`
	Recipients       []CampaignRecipient  `json:"recipients"`
	ScheduledAt      *time.Time           `json:"scheduledAt"`
	Recurrence       *campaign.Recurrence `json:"recurrence,omitempty"`
	Automation       *AutomationRule      `json:"crm_automation,omitempty"`
}

// CampaignResponse is returned by create and update
type CampaignResponse struct {
	campaign.Summary
	Message string `json:"message,omitempty"`
}

// StatusRequest is the body of PATCH /api/campaigns/:id/status
type StatusRequest struct {
	Status campaign.Status `json:"status"`
}

// RescheduleRequest is the body of PATCH /api/campaigns/:id/reschedule
type RescheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// Pipeline is a CRM sales pipeline
type Pipeline struct {
	ID     ident.ID `json:"id"`
	Name   string   `json:"name"`
	Stages []Stage  `json:"stages"`
}

// Stage is a column of a pipeline
type Stage struct {
	ID       ident.ID `json:"id"`
	Name     string   `json:"name"`
	Position int      `json:"position"`
}

// PipelineRequest creates a pipeline
type PipelineRequest struct {
	Name   string   `json:"name"`
	Stages []string `json:"stages"`
}

// Deal is a CRM opportunity
type Deal struct {
	ID         ident.ID `json:"id"`
	Title      string   `json:"title"`
	PipelineID ident.ID `json:"pipeline_id"`
	StageID    ident.ID `json:"stage_id"`
	ContactID  ident.ID `json:"contact_id,omitempty"`
	Value      float64  `json:"value,omitempty"`
}

// DealRequest creates or updates a deal
type DealRequest struct {
	Title      string   `json:"title,omitempty"`
	PipelineID ident.ID `json:"pipeline_id,omitempty"`
	StageID    ident.ID `json:"stage_id,omitempty"`
	ContactID  ident.ID `json:"contact_id,omitempty"`
	Value      *float64 `json:"value,omitempty"`
}

// Contact is a chat contact
type Contact struct {
	ID    ident.ID `json:"id"`
	Name  string   `json:"name"`
	Phone string   `json:"phone"`
	Email string   `json:"email,omitempty"`
	Tags  []Tag    `json:"tags,omitempty"`
}

// ContactRequest creates or updates a contact
type ContactRequest struct {
	Name   string     `json:"name"`
	Phone  string     `json:"phone"`
	Email  string     `json:"email,omitempty"`
	TagIDs []ident.ID `json:"tag_ids,omitempty"`
}

// ContactFilter narrows a contact listing
type ContactFilter struct {
	Search string
	Tag    string
	Limit  int
	Offset int
}

// Tag labels contacts
type Tag struct {
	ID    ident.ID `json:"id"`
	Name  string   `json:"name"`
	Color string   `json:"color,omitempty"`
}

// ImportRequest bulk-creates contacts
type ImportRequest struct {
	Contacts []ContactRequest `json:"contacts"`
	TagIDs   []ident.ID       `json:"tag_ids,omitempty"`
}

// ImportResult summarizes a bulk import
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
