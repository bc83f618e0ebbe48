package campaign

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/foxzi/zapdesk/internal/ident"
)

// Status is the lifecycle state of a campaign
type Status string

// Campaign statuses
const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusProcessing Status = "processing"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
)

// Errors
var (
	ErrNotFound          = errors.New("campaign not found")
	ErrInvalidTransition = errors.New("invalid campaign status transition")
	ErrInvalidRecurrence = errors.New("invalid recurrence rule")
)

// ParseStatus normalizes a status received from the backend
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// Summary is the dashboard view of a campaign
type Summary struct {
	ID          ident.ID    `json:"id"`
	Name        string      `json:"name"`
	Status      Status      `json:"status"`
	Sent        int         `json:"sent"`
	Total       int         `json:"total"`
	ScheduledAt *time.Time  `json:"scheduledAt"`
	Recurrence  *Recurrence `json:"recurrence,omitempty"`
	ChannelID   ident.ID    `json:"channel_id,omitempty"`
	TemplateID  ident.ID    `json:"template_id,omitempty"`
	CreatedAt   *time.Time  `json:"created_at,omitempty"`
}

// Progress returns the sent fraction in percent, capped at 100
func (s *Summary) Progress() float64 {
	if s.Total <= 0 {
		return 0
	}
	p := float64(s.Sent) / float64(s.Total) * 100
	if p > 100 {
		return 100
	}
	return p
}

// RecurrenceType is the repeat cadence of a campaign
type RecurrenceType string

// Recurrence types
const (
	RecurrenceNone    RecurrenceType = "none"
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

var timeOfDayPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Recurrence describes how a campaign repeats
type Recurrence struct {
	Type             RecurrenceType `json:"type"`
	Interval         int            `json:"interval"`
	DayOfWeekOrMonth *int           `json:"dayOfWeekOrMonth,omitempty"`
	TimeOfDay        string         `json:"timeOfDay,omitempty"`
}

// Validate checks the rule's fields for its type
func (r *Recurrence) Validate() error {
	switch r.Type {
	case RecurrenceNone, "":
		return nil
	case RecurrenceDaily, RecurrenceWeekly, RecurrenceMonthly:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRecurrence, r.Type)
	}

	if r.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1", ErrInvalidRecurrence)
	}
	if !timeOfDayPattern.MatchString(r.TimeOfDay) {
		return fmt.Errorf("%w: time of day must be HH:MM", ErrInvalidRecurrence)
	}

	switch r.Type {
	case RecurrenceWeekly:
		if r.DayOfWeekOrMonth == nil || *r.DayOfWeekOrMonth < 0 || *r.DayOfWeekOrMonth > 6 {
			return fmt.Errorf("%w: weekly rule needs a day of week 0-6", ErrInvalidRecurrence)
		}
	case RecurrenceMonthly:
		if r.DayOfWeekOrMonth == nil || *r.DayOfWeekOrMonth < 1 || *r.DayOfWeekOrMonth > 31 {
			return fmt.Errorf("%w: monthly rule needs a day of month 1-31", ErrInvalidRecurrence)
		}
	}
	return nil
}

// Repeats reports whether the rule schedules more than one run
func (r *Recurrence) Repeats() bool {
	return r != nil && r.Type != RecurrenceNone && r.Type != ""
}

// transitions lists the allowed status changes. Deletion is not a status.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusScheduled, StatusProcessing},
	StatusScheduled:  {StatusProcessing, StatusPaused, StatusCompleted},
	StatusProcessing: {StatusPaused, StatusCompleted},
	StatusPaused:     {StatusScheduled, StatusProcessing},
	StatusCompleted:  {},
}

// CanTransition reports whether a campaign may move from one status to another
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ResumeTarget returns the status a paused campaign resumes into
func ResumeTarget(scheduledAt *time.Time, now time.Time) Status {
	if scheduledAt != nil && scheduledAt.After(now) {
		return StatusScheduled
	}
	return StatusProcessing
}
