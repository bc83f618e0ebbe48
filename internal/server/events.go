package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/foxzi/zapdesk/internal/campaign"
)

// handleEvents handles GET /api/events as a server-sent event stream.
// The stream opens with the current campaigns, notifications and
// connection state, then relays every reconciler update.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	updates, cancel := s.deps.Campaigns.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial := []campaign.Update{
		{Kind: campaign.UpdateCampaigns, Campaigns: s.deps.Campaigns.Snapshot()},
		{Kind: campaign.UpdateNotifications, Notifications: s.deps.Campaigns.Notifications()},
	}
	if s.deps.Socket != nil {
		initial = append(initial, campaign.Update{Kind: campaign.UpdateConnection, Connection: s.deps.Socket.State().String()})
	}
	for _, u := range initial {
		if err := writeEvent(w, u); err != nil {
			return
		}
	}
	if err := rc.Flush(); err != nil {
		s.logger.Debug("event stream flush unsupported", "error", err)
	}

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := writeEvent(w, u); err != nil {
				return
			}
		}
		_ = rc.Flush()
	}
}

func writeEvent(w http.ResponseWriter, u campaign.Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", u.Kind, data)
	return err
}
