package campaign

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foxzi/zapdesk/internal/ident"
)

// Socket event names
const (
	EventProgress            = "campaign_progress"
	EventCompleted           = "campaign_completed"
	EventError               = "campaign_error"
	EventCRMDealUpdate       = "crm_deal_update"
	EventChannelStatusUpdate = "channel_status_update"
	EventNewMessage          = "new_message"
	EventMessageStatusUpdate = "message_status_update"
)

// ForwardedEvents are relayed to subscribers without touching campaign state
var ForwardedEvents = []string{
	EventCRMDealUpdate,
	EventChannelStatusUpdate,
	EventNewMessage,
	EventMessageStatusUpdate,
}

// ProgressEvent reports the outcome of one message send
type ProgressEvent struct {
	CampaignID ident.ID `json:"campaignId"`
	Status     string   `json:"status"`
}

// CompletedEvent reports that a campaign finished
type CompletedEvent struct {
	CampaignID ident.ID `json:"campaignId"`
	Status     string   `json:"status"`
}

// ErrorEvent reports an asynchronous campaign failure
type ErrorEvent struct {
	CampaignID ident.ID `json:"campaignId"`
	Message    string   `json:"message"`
}

// eventPayload accepts both camelCase and snake_case keys
type eventPayload struct {
	CampaignID  ident.ID `json:"campaignId"`
	CampaignID2 ident.ID `json:"campaign_id"`
	Status      string   `json:"status"`
	Message     string   `json:"message"`
	Error       string   `json:"error"`
}

func decodeEvent(data json.RawMessage) (eventPayload, error) {
	var p eventPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("decode campaign event: %w", err)
	}
	if p.CampaignID.IsZero() {
		p.CampaignID = p.CampaignID2
	}
	return p, nil
}

// DecodeProgress parses a campaign_progress payload
func DecodeProgress(data json.RawMessage) (ProgressEvent, error) {
	p, err := decodeEvent(data)
	if err != nil {
		return ProgressEvent{}, err
	}
	return ProgressEvent{CampaignID: p.CampaignID, Status: strings.ToLower(p.Status)}, nil
}

// DecodeCompleted parses a campaign_completed payload
func DecodeCompleted(data json.RawMessage) (CompletedEvent, error) {
	p, err := decodeEvent(data)
	if err != nil {
		return CompletedEvent{}, err
	}
	if p.Status == "" {
		p.Status = string(StatusCompleted)
	}
	return CompletedEvent{CampaignID: p.CampaignID, Status: p.Status}, nil
}

// DecodeError parses a campaign_error payload
func DecodeError(data json.RawMessage) (ErrorEvent, error) {
	p, err := decodeEvent(data)
	if err != nil {
		return ErrorEvent{}, err
	}
	msg := p.Message
	if msg == "" {
		msg = p.Error
	}
	return ErrorEvent{CampaignID: p.CampaignID, Message: msg}, nil
}
