package server

import (
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/foxzi/zapdesk/internal/backend"
	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/recipient"
	"github.com/foxzi/zapdesk/internal/store"
	"github.com/foxzi/zapdesk/internal/template"
	"github.com/foxzi/zapdesk/internal/tracing"
	"github.com/foxzi/zapdesk/internal/wizard"
)

const maxPreviewBytes = 32 << 20

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Socket    string `json:"socket,omitempty"`
	Campaigns int    `json:"campaigns"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RescheduleRequest is the body of POST /api/campaigns/{id}/reschedule
type RescheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// PreviewResponse is the response for POST /api/recipients/preview
type PreviewResponse struct {
	Headers     []string              `json:"headers"`
	PhoneColumn string                `json:"phone_column"`
	Variables   []string              `json:"variables"`
	Mappings    template.MappingSet   `json:"mappings"`
	Missing     []string              `json:"missing,omitempty"`
	Recipients  []recipient.Recipient `json:"recipients"`
	Stats       recipient.Stats       `json:"stats"`
	Preview     *template.Preview     `json:"preview,omitempty"`
}

// AuditResponse is the response for GET /api/audit
type AuditResponse struct {
	Entries []store.AuditEntry `json:"entries"`
	Total   int                `json:"total"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}
	if s.deps.Socket != nil {
		resp.Socket = s.deps.Socket.State().String()
	}
	if s.deps.Campaigns != nil {
		resp.Campaigns = len(s.deps.Campaigns.Snapshot())
	}
	s.sendJSON(w, http.StatusOK, resp)
}

// handleCampaigns handles GET /api/campaigns
func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.deps.Campaigns.Snapshot())
}

// handleRefresh handles POST /api/campaigns/refresh
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Campaigns.Refresh(r.Context()); err != nil {
		s.sendActionError(w, "refresh", "", err)
		return
	}
	s.sendJSON(w, http.StatusOK, s.deps.Campaigns.Snapshot())
}

// handlePause handles POST /api/campaigns/{id}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := ident.ID(chi.URLParam(r, "id"))
	if err := s.deps.Campaigns.Pause(r.Context(), id); err != nil {
		s.sendActionError(w, "pause", id, err)
		return
	}
	s.logger.Info("campaign paused", "campaign_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleResume handles POST /api/campaigns/{id}/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := ident.ID(chi.URLParam(r, "id"))
	if err := s.deps.Campaigns.Resume(r.Context(), id); err != nil {
		s.sendActionError(w, "resume", id, err)
		return
	}
	s.logger.Info("campaign resumed", "campaign_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleReschedule handles POST /api/campaigns/{id}/reschedule.
// An empty body or a null scheduled_at sends immediately.
func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id := ident.ID(chi.URLParam(r, "id"))

	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	res, err := s.deps.Campaigns.Reschedule(r.Context(), id, req.ScheduledAt)
	if err != nil {
		s.sendActionError(w, "reschedule", id, err)
		return
	}
	if res == nil {
		res = &campaign.RescheduleResult{}
	}
	s.logger.Info("campaign rescheduled", "campaign_id", id, "requeued", res.RequeuedCount)
	s.sendJSON(w, http.StatusOK, res)
}

// handleDelete handles DELETE /api/campaigns/{id}
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := ident.ID(chi.URLParam(r, "id"))
	if err := s.deps.Campaigns.Delete(r.Context(), id); err != nil {
		s.sendActionError(w, "delete", id, err)
		return
	}
	s.logger.Info("campaign deleted", "campaign_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// handleNotifications handles GET /api/notifications
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	notes := s.deps.Campaigns.Notifications()
	if notes == nil {
		notes = []campaign.Notification{}
	}
	s.sendJSON(w, http.StatusOK, notes)
}

// handleDismiss handles DELETE /api/notifications/{key}
func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Campaigns.DismissNotification(chi.URLParam(r, "key")) {
		s.sendError(w, http.StatusNotFound, "Notification not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleAvailableTemplates handles GET /api/templates/available?channel_id=
func (s *Server) handleAvailableTemplates(w http.ResponseWriter, r *http.Request) {
	channelID := r.URL.Query().Get("channel_id")
	if channelID == "" {
		s.sendError(w, http.StatusBadRequest, "channel_id is required")
		return
	}

	inv, err := s.deps.Inventory.Inventory(r.Context())
	if err != nil {
		s.sendActionError(w, "inventory", "", err)
		return
	}
	ch, ok := inv.Channel(ident.ID(channelID))
	if !ok {
		s.sendError(w, http.StatusNotFound, "Channel not found")
		return
	}

	templates := template.Available(inv.Templates, ch)
	if templates == nil {
		templates = []template.Template{}
	}
	s.sendJSON(w, http.StatusOK, templates)
}

// handleRecipientsPreview handles POST /api/recipients/preview.
// Form fields: file, channel_id, template, optional phone_column and
// mappings (a JSON object of variable to {"type","value"}).
func (s *Server) handleRecipientsPreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPreviewBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	ctx, span := tracing.StartSpan(r.Context(), "recipients.preview",
		attribute.String("filename", header.Filename),
	)
	defer span.End()

	inv, err := s.deps.Inventory.Inventory(ctx)
	if err != nil {
		s.sendActionError(w, "inventory", "", err)
		return
	}

	wz := wizard.New(inv)
	if err := wz.SelectChannel(ident.ID(r.FormValue("channel_id"))); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := wz.SelectTemplate(r.FormValue("template")); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	sheet, err := recipient.Decode(file, header.Filename)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	wz.LoadSheet(sheet)

	if col := r.FormValue("phone_column"); col != "" {
		if err := wz.SetPhoneColumn(col); err != nil {
			s.sendError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if raw := r.FormValue("mappings"); raw != "" {
		var set template.MappingSet
		if err := json.Unmarshal([]byte(raw), &set); err != nil {
			s.sendError(w, http.StatusBadRequest, "Invalid mappings")
			return
		}
		for _, v := range slices.Sorted(maps.Keys(set)) {
			if err := wz.SetMapping(v, set[v]); err != nil {
				s.sendError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	vars := wz.Variables()
	mappings := wz.Mappings()
	resp := PreviewResponse{
		Headers:     sheet.Headers,
		PhoneColumn: wz.PhoneColumn(),
		Variables:   vars,
		Mappings:    mappings,
		Missing:     mappings.Missing(vars),
		Recipients:  wz.Recipients(),
		Stats:       wz.Stats(),
	}
	if resp.Recipients == nil {
		resp.Recipients = []recipient.Recipient{}
	}
	if p, ok := wz.Preview(0); ok {
		resp.Preview = &p
	}

	span.SetAttributes(
		attribute.Int("rows", resp.Stats.Rows),
		attribute.Int("resolved", resp.Stats.Resolved),
	)
	s.sendJSON(w, http.StatusOK, resp)
}

// handleAudit handles GET /api/audit
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.deps.Audit == nil {
		s.sendError(w, http.StatusNotFound, "Audit log not enabled")
		return
	}

	q := r.URL.Query()
	filter := store.AuditFilter{
		Action:     q.Get("action"),
		CampaignID: q.Get("campaign_id"),
		Limit:      50,
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil && v > 0 && v <= 500 {
		filter.Limit = v
	}
	if v, err := strconv.Atoi(q.Get("offset")); err == nil && v > 0 {
		filter.Offset = v
	}

	entries, total, err := s.deps.Audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list audit log", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list audit log")
		return
	}
	s.sendJSON(w, http.StatusOK, AuditResponse{Entries: entries, Total: total})
}

// sendActionError maps reconciler and backend errors onto HTTP statuses
func (s *Server) sendActionError(w http.ResponseWriter, action string, id ident.ID, err error) {
	switch {
	case errors.Is(err, campaign.ErrNotFound), errors.Is(err, backend.ErrNotFound):
		s.sendError(w, http.StatusNotFound, "Campaign not found")
	case errors.Is(err, campaign.ErrInvalidTransition):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, backend.ErrUnauthorized):
		s.sendError(w, http.StatusUnauthorized, "Backend session expired, run zapdesk login")
	default:
		s.logger.Error("campaign action failed", "action", action, "campaign_id", id, "error", err)
		s.sendError(w, http.StatusBadGateway, err.Error())
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
