package template

import (
	"strings"

	"github.com/foxzi/zapdesk/internal/ident"
)

// Component types that can carry variables
const (
	ComponentHeader  = "HEADER"
	ComponentBody    = "BODY"
	ComponentFooter  = "FOOTER"
	ComponentButtons = "BUTTONS"
)

// StatusApproved is the only template status eligible for sending
const StatusApproved = "APPROVED"

// Template represents a WhatsApp message template as returned by the backend
type Template struct {
	ID         ident.ID    `json:"id"`
	Name       string      `json:"name"`
	Language   string      `json:"language,omitempty"`
	Category   string      `json:"category,omitempty"`
	Status     string      `json:"status"`
	AccountID  ident.ID    `json:"account_id,omitempty"`
	ChannelID  ident.ID    `json:"channel_id,omitempty"`
	Components []Component `json:"components"`
}

// Component is one structural block of a template
type Component struct {
	Type   string `json:"type"`
	Format string `json:"format,omitempty"`
	Text   string `json:"text,omitempty"`
}

// Channel is a connected WhatsApp sending endpoint
type Channel struct {
	ID          ident.ID `json:"id"`
	Name        string   `json:"name"`
	AccountID   ident.ID `json:"account_id,omitempty"`
	PhoneNumber string   `json:"phone_number,omitempty"`
	Status      string   `json:"status,omitempty"`
	Type        string   `json:"type,omitempty"`
}

// Approved reports whether the template may be used for sending
func (t *Template) Approved() bool {
	return strings.EqualFold(t.Status, StatusApproved)
}

// Component returns the first component of the given type, or nil
func (t *Template) Component(kind string) *Component {
	for i := range t.Components {
		if strings.EqualFold(t.Components[i].Type, kind) {
			return &t.Components[i]
		}
	}
	return nil
}

// Variables returns the ordered variable set of the template
func (t *Template) Variables() []string {
	return ExtractVariables(t.Components)
}
