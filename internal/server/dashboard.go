package server

import (
	"bytes"
	"net/http"
	"time"

	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
)

type dashboardRow struct {
	ID          ident.ID
	Name        string
	Status      campaign.Status
	Progress    float64
	Sent        int
	Total       int
	ScheduledAt *time.Time
}

type dashboardPage struct {
	Version       string
	Connection    string
	Campaigns     []dashboardRow
	Notifications []campaign.Notification
}

// handleDashboard handles GET /
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	page := dashboardPage{
		Version:       s.version,
		Connection:    "disconnected",
		Notifications: s.deps.Campaigns.Notifications(),
	}
	if s.deps.Socket != nil {
		page.Connection = s.deps.Socket.State().String()
	}
	for _, c := range s.deps.Campaigns.Snapshot() {
		page.Campaigns = append(page.Campaigns, dashboardRow{
			ID:          c.ID,
			Name:        c.Name,
			Status:      c.Status,
			Progress:    c.Progress(),
			Sent:        c.Sent,
			Total:       c.Total,
			ScheduledAt: c.ScheduledAt,
		})
	}

	var buf bytes.Buffer
	if err := s.views.Render(&buf, "dashboard", page); err != nil {
		s.logger.Error("failed to render dashboard", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to render dashboard")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}
