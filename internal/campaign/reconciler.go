package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/metrics"
	"github.com/foxzi/zapdesk/internal/socket"
)

// DefaultNotificationTTL is how long an error notification stays visible
const DefaultNotificationTTL = 10 * time.Second

const subscriberBuffer = 32

// API is the backend surface driven by the reconciler
type API interface {
	ListCampaigns(ctx context.Context) ([]Summary, error)
	SetCampaignStatus(ctx context.Context, id ident.ID, status Status) error
	RescheduleCampaign(ctx context.Context, id ident.ID, at *time.Time) (*RescheduleResult, error)
	DeleteCampaign(ctx context.Context, id ident.ID) error
}

// RescheduleResult is the backend's answer to a reschedule
type RescheduleResult struct {
	Message       string `json:"message"`
	RequeuedCount int    `json:"requeued_count"`
}

// Auditor records user-initiated campaign actions
type Auditor interface {
	Record(ctx context.Context, action, campaignID string, details map[string]any) error
}

// EventSource is the listener half of the socket service
type EventSource interface {
	On(event string, fn socket.Handler) socket.ListenerID
	Off(event string, id socket.ListenerID)
}

// Notification is a transient campaign error shown to the user
type Notification struct {
	Key        string    `json:"key"`
	CampaignID ident.ID  `json:"campaign_id"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// UpdateKind identifies what changed
type UpdateKind string

// Update kinds
const (
	UpdateCampaigns     UpdateKind = "campaigns"
	UpdateNotifications UpdateKind = "notifications"
	UpdateEvent         UpdateKind = "event"
	UpdateConnection    UpdateKind = "connection"
)

// Event is a socket event relayed as-is
type Event struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Update is published to subscribers after every change
type Update struct {
	Kind          UpdateKind     `json:"kind"`
	Campaigns     []Summary      `json:"campaigns,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
	Event         *Event         `json:"event,omitempty"`
	Connection    string         `json:"connection,omitempty"`
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithNotificationTTL sets the lifetime of error notifications
func WithNotificationTTL(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.ttl = d
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithAuditor records user actions
func WithAuditor(a Auditor) Option {
	return func(r *Reconciler) { r.auditor = a }
}

// Reconciler keeps the local campaign cache consistent with REST snapshots
// and the realtime event stream.
type Reconciler struct {
	api     API
	auditor Auditor
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	order []ident.ID
	items map[ident.ID]*Summary
	notes []Notification

	// sent events seen for campaigns whose delete is still in flight
	deleting map[ident.ID]int

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int

	bindMu    sync.Mutex
	source    EventSource
	listeners map[string]socket.ListenerID

	refetch chan struct{}
}

// NewReconciler creates a reconciler backed by api
func NewReconciler(api API, logger *slog.Logger, opts ...Option) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Reconciler{
		api:      api,
		logger:   logger.With("component", "reconciler"),
		ttl:      DefaultNotificationTTL,
		now:      time.Now,
		items:    make(map[ident.ID]*Summary),
		deleting: make(map[ident.ID]int),
		subs:     make(map[int]chan Update),
		refetch:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Snapshot returns a copy of the cached campaigns in backend order
func (r *Reconciler) Snapshot() []Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Get returns one cached campaign
func (r *Reconciler) Get(id ident.ID) (Summary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return Summary{}, false
	}
	return *s, true
}

// Notifications returns the unexpired error notifications, oldest first
func (r *Reconciler) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []Notification
	for _, n := range r.notes {
		if now.Before(n.ExpiresAt) {
			out = append(out, n)
		}
	}
	return out
}

// ApplySnapshot replaces the whole cache with an authoritative list
func (r *Reconciler) ApplySnapshot(list []Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = make([]ident.ID, 0, len(list))
	r.items = make(map[ident.ID]*Summary, len(list))
	for i := range list {
		s := list[i]
		s.Status = ParseStatus(string(s.Status))
		if _, dup := r.items[s.ID]; !dup {
			r.order = append(r.order, s.ID)
		}
		r.items[s.ID] = &s
	}
	r.publishCampaignsLocked()
}

// Refresh fetches a full snapshot from the backend
func (r *Reconciler) Refresh(ctx context.Context) error {
	list, err := r.api.ListCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to list campaigns: %w", err)
	}
	r.ApplySnapshot(list)
	return nil
}

// HandleProgress counts one sent message. Other statuses are ignored.
func (r *Reconciler) HandleProgress(ev ProgressEvent) {
	if ev.Status != "sent" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[ev.CampaignID]
	if !ok {
		if n, pending := r.deleting[ev.CampaignID]; pending {
			r.deleting[ev.CampaignID] = n + 1
		}
		return
	}
	s.Sent++
	r.publishCampaignsLocked()
}

// HandleCompleted applies the final status and schedules a full refetch
func (r *Reconciler) HandleCompleted(ev CompletedEvent) {
	r.mu.Lock()
	if s, ok := r.items[ev.CampaignID]; ok {
		s.Status = ParseStatus(ev.Status)
		r.publishCampaignsLocked()
	}
	r.mu.Unlock()

	r.RequestRefresh()
}

// HandleError adds a transient notification. Campaign state is unchanged.
func (r *Reconciler) HandleError(ev ErrorEvent) Notification {
	now := r.now()
	n := Notification{
		Key:        uuid.NewString(),
		CampaignID: ev.CampaignID,
		Message:    ev.Message,
		CreatedAt:  now,
		ExpiresAt:  now.Add(r.ttl),
	}

	r.logger.Warn("campaign error", "campaign_id", ev.CampaignID, "message", ev.Message)

	r.mu.Lock()
	r.notes = append(r.notes, n)
	r.publishNotificationsLocked()
	r.mu.Unlock()
	return n
}

// ExpireNotifications drops expired notifications and returns how many were removed
func (r *Reconciler) ExpireNotifications() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	kept := r.notes[:0]
	for _, n := range r.notes {
		if now.Before(n.ExpiresAt) {
			kept = append(kept, n)
		}
	}
	removed := len(r.notes) - len(kept)
	clear(r.notes[len(kept):])
	r.notes = kept
	if removed > 0 {
		r.publishNotificationsLocked()
	}
	return removed
}

// DismissNotification removes one notification before it expires
func (r *Reconciler) DismissNotification(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, n := range r.notes {
		if n.Key == key {
			r.notes = slices.Delete(r.notes, i, i+1)
			r.publishNotificationsLocked()
			return true
		}
	}
	return false
}

// RequestRefresh asks Run to refetch the snapshot. Requests coalesce.
func (r *Reconciler) RequestRefresh() {
	select {
	case r.refetch <- struct{}{}:
	default:
	}
}

// Pause stops a running or scheduled campaign
func (r *Reconciler) Pause(ctx context.Context, id ident.ID) error {
	return r.act(ctx, "pause", id, func(s *Summary) error {
		if !CanTransition(s.Status, StatusPaused) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, StatusPaused)
		}
		s.Status = StatusPaused
		return nil
	}, func(ctx context.Context) error {
		return r.api.SetCampaignStatus(ctx, id, StatusPaused)
	})
}

// Resume restarts a paused campaign. It becomes scheduled when its start
// time is still ahead, processing otherwise.
func (r *Reconciler) Resume(ctx context.Context, id ident.ID) error {
	var target Status
	return r.act(ctx, "resume", id, func(s *Summary) error {
		if s.Status != StatusPaused {
			return fmt.Errorf("%w: %s is not paused", ErrInvalidTransition, s.Status)
		}
		target = ResumeTarget(s.ScheduledAt, r.now())
		s.Status = target
		return nil
	}, func(ctx context.Context) error {
		return r.api.SetCampaignStatus(ctx, id, target)
	})
}

// Reschedule moves the start time. A nil time sends immediately.
func (r *Reconciler) Reschedule(ctx context.Context, id ident.ID, at *time.Time) (*RescheduleResult, error) {
	var result *RescheduleResult
	err := r.act(ctx, "reschedule", id, func(s *Summary) error {
		if at != nil {
			t := *at
			s.ScheduledAt = &t
		} else {
			s.ScheduledAt = nil
		}
		s.Status = ResumeTarget(at, r.now())
		return nil
	}, func(ctx context.Context) error {
		res, err := r.api.RescheduleCampaign(ctx, id, at)
		result = res
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a campaign in any state
func (r *Reconciler) Delete(ctx context.Context, id ident.ID) error {
	r.mu.Lock()
	prev, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	saved := *prev
	pos := slices.Index(r.order, id)
	delete(r.items, id)
	r.order = slices.DeleteFunc(r.order, func(x ident.ID) bool { return x == id })
	r.deleting[id] = 0
	r.publishCampaignsLocked()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.deleting, id)
		r.mu.Unlock()
	}()

	err := r.api.DeleteCampaign(ctx, id)
	r.finish(ctx, "delete", id, err, func() {
		if _, exists := r.items[id]; exists {
			return
		}
		saved.Sent += r.deleting[id]
		r.items[id] = &saved
		if pos < 0 || pos > len(r.order) {
			pos = len(r.order)
		}
		r.order = slices.Insert(r.order, pos, id)
	})
	if err != nil {
		return fmt.Errorf("delete campaign %s: %w", id, err)
	}
	return nil
}

// act applies an optimistic change, calls the backend and reconciles
func (r *Reconciler) act(ctx context.Context, action string, id ident.ID, mutate func(*Summary) error, call func(context.Context) error) error {
	r.mu.Lock()
	s, ok := r.items[id]
	if !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	saved := *s
	if err := mutate(s); err != nil {
		r.mu.Unlock()
		return err
	}
	r.publishCampaignsLocked()
	r.mu.Unlock()

	err := call(ctx)
	r.finish(ctx, action, id, err, func() {
		// Restore only what the action changed
		if cur, exists := r.items[id]; exists {
			cur.Status = saved.Status
			cur.ScheduledAt = saved.ScheduledAt
		}
	})
	if err != nil {
		return fmt.Errorf("%s campaign %s: %w", action, id, err)
	}
	return nil
}

// finish records the action and refetches. When the backend call failed
// and the refetch also fails, rollback restores the pre-action state.
func (r *Reconciler) finish(ctx context.Context, action string, id ident.ID, callErr error, rollback func()) {
	metrics.IncCampaignAction(action, callErr)
	r.audit(ctx, action, id, callErr)

	if callErr != nil {
		r.logger.Warn("campaign action failed", "action", action, "campaign_id", id, "error", callErr)
	}

	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("refetch after action failed", "action", action, "campaign_id", id, "error", err)
		if callErr != nil {
			r.mu.Lock()
			rollback()
			r.publishCampaignsLocked()
			r.mu.Unlock()
		}
	}
}

func (r *Reconciler) audit(ctx context.Context, action string, id ident.ID, err error) {
	if r.auditor == nil {
		return
	}
	details := map[string]any{"ok": err == nil}
	if err != nil {
		details["error"] = err.Error()
	}
	if aerr := r.auditor.Record(ctx, action, id.String(), details); aerr != nil {
		r.logger.Warn("failed to record audit entry", "action", action, "error", aerr)
	}
}

// Bind registers the reconciler's handlers on src. Binding the same source
// again is a no-op; binding another source moves the handlers.
func (r *Reconciler) Bind(src EventSource) {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()

	if r.source == src {
		return
	}
	r.unbindLocked()

	r.source = src
	r.listeners = map[string]socket.ListenerID{
		EventProgress:          src.On(EventProgress, r.onProgress),
		EventCompleted:         src.On(EventCompleted, r.onCompleted),
		EventError:             src.On(EventError, r.onError),
		socket.EventConnect:    src.On(socket.EventConnect, r.onConnect),
		socket.EventDisconnect: src.On(socket.EventDisconnect, r.onDisconnect),
	}
	for _, name := range ForwardedEvents {
		r.listeners[name] = src.On(name, func(p json.RawMessage) { r.forward(name, p) })
	}
}

// Unbind removes every handler registered by Bind
func (r *Reconciler) Unbind() {
	r.bindMu.Lock()
	defer r.bindMu.Unlock()
	r.unbindLocked()
}

func (r *Reconciler) unbindLocked() {
	if r.source == nil {
		return
	}
	for event, id := range r.listeners {
		r.source.Off(event, id)
	}
	r.source = nil
	r.listeners = nil
}

func (r *Reconciler) onProgress(p json.RawMessage) {
	ev, err := DecodeProgress(p)
	if err != nil {
		r.logger.Warn("bad progress event", "error", err)
		return
	}
	r.HandleProgress(ev)
}

func (r *Reconciler) onCompleted(p json.RawMessage) {
	ev, err := DecodeCompleted(p)
	if err != nil {
		r.logger.Warn("bad completed event", "error", err)
		return
	}
	r.HandleCompleted(ev)
}

func (r *Reconciler) onError(p json.RawMessage) {
	ev, err := DecodeError(p)
	if err != nil {
		r.logger.Warn("bad error event", "error", err)
		return
	}
	r.HandleError(ev)
}

// Events may have been missed while offline
func (r *Reconciler) onConnect(json.RawMessage) {
	r.publish(Update{Kind: UpdateConnection, Connection: socket.StateConnected.String()})
	r.RequestRefresh()
}

func (r *Reconciler) onDisconnect(json.RawMessage) {
	r.publish(Update{Kind: UpdateConnection, Connection: socket.StateDisconnected.String()})
}

func (r *Reconciler) forward(name string, p json.RawMessage) {
	payload := append(json.RawMessage(nil), p...)
	r.publish(Update{Kind: UpdateEvent, Event: &Event{Name: name, Payload: payload}})
}

// Subscribe returns a channel of updates and a cancel function.
// Slow subscribers miss updates rather than block the reconciler.
func (r *Reconciler) Subscribe() (<-chan Update, func()) {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	id := r.nextSub
	r.nextSub++
	ch := make(chan Update, subscriberBuffer)
	r.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subMu.Lock()
			delete(r.subs, id)
			r.subMu.Unlock()
			close(ch)
		})
	}
}

func (r *Reconciler) publish(u Update) {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

func (r *Reconciler) publishCampaignsLocked() {
	metrics.SetCampaignGauges(len(r.items), len(r.notes))
	r.publish(Update{Kind: UpdateCampaigns, Campaigns: r.snapshotLocked()})
}

func (r *Reconciler) publishNotificationsLocked() {
	metrics.SetCampaignGauges(len(r.items), len(r.notes))
	r.publish(Update{Kind: UpdateNotifications, Notifications: append([]Notification(nil), r.notes...)})
}

func (r *Reconciler) snapshotLocked() []Summary {
	out := make([]Summary, 0, len(r.order))
	for _, id := range r.order {
		if s, ok := r.items[id]; ok {
			out = append(out, *s)
		}
	}
	return out
}

// Run expires notifications and serves refetch requests until ctx is done
func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.ttl / 4
	if interval > time.Second {
		interval = time.Second
	}
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.ExpireNotifications()
		case <-r.refetch:
			if err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
				r.logger.Warn("campaign refetch failed", "error", err)
			}
		}
	}
}
