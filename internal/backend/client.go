package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
	"github.com/foxzi/zapdesk/internal/metrics"
	"github.com/foxzi/zapdesk/internal/template"
)

const tracerName = "github.com/foxzi/zapdesk/internal/backend"

// Errors callers branch on
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
)

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

// Is maps status codes onto the package sentinels
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// TokenSource supplies the bearer token for each request
type TokenSource interface {
	Token() string
}

// StaticToken is a fixed token
type StaticToken string

// Token returns the token
func (t StaticToken) Token() string { return string(t) }

// Client is the backend REST API client
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	tracer     trace.Tracer
}

// NewClient creates a new backend API client
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		tracer: otel.Tracer(tracerName),
	}
}

// request performs an HTTP request to the backend API
func (c *Client) request(ctx context.Context, method, path string, body any, result any) (err error) {
	route := routeOf(path)
	ctx, span := c.tracer.Start(ctx, method+" "+route, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("http.route", route),
		))
	start := time.Now()
	status := "error"
	defer func() {
		metrics.ObserveBackendRequest(method, status, time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errResp ErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil {
			apiErr.Message = errResp.Error
			if apiErr.Message == "" {
				apiErr.Message = errResp.Message
			}
		}
		return apiErr
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// routeOf replaces identifier segments so span names stay low-cardinality
func routeOf(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if i > 0 && p != "" && (p[0] >= '0' && p[0] <= '9' || len(p) == 36) {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}

func escape(id ident.ID) string {
	return url.PathEscape(id.String())
}

// Login exchanges credentials for a bearer token
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	req := &LoginRequest{Email: email, Password: password}
	if err := c.request(ctx, http.MethodPost, "/api/login", req, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("login response has no token")
	}
	return &resp, nil
}

// ListChannels lists the tenant's channels
func (c *Client) ListChannels(ctx context.Context) ([]template.Channel, error) {
	var resp []template.Channel
	if err := c.request(ctx, http.MethodGet, "/api/channels", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListTemplates lists every template of every channel
func (c *Client) ListTemplates(ctx context.Context) ([]template.Template, error) {
	var resp []template.Template
	if err := c.request(ctx, http.MethodGet, "/api/channels/templates/all", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Inventory fetches channels and templates concurrently
func (c *Client) Inventory(ctx context.Context) (*Inventory, error) {
	inv := &Inventory{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		channels, err := c.ListChannels(gctx)
		if err != nil {
			return fmt.Errorf("list channels: %w", err)
		}
		inv.Channels = channels
		return nil
	})
	g.Go(func() error {
		templates, err := c.ListTemplates(gctx)
		if err != nil {
			return fmt.Errorf("list templates: %w", err)
		}
		inv.Templates = templates
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return inv, nil
}

// ListCampaigns returns the full campaign snapshot
func (c *Client) ListCampaigns(ctx context.Context) ([]campaign.Summary, error) {
	var resp []campaign.Summary
	if err := c.request(ctx, http.MethodGet, "/api/campaigns", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateCampaign submits a new campaign
func (c *Client) CreateCampaign(ctx context.Context, req *CampaignRequest) (*CampaignResponse, error) {
	var resp CampaignResponse
	if err := c.request(ctx, http.MethodPost, "/api/campaigns", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateCampaign replaces an existing campaign's definition
func (c *Client) UpdateCampaign(ctx context.Context, id ident.ID, req *CampaignRequest) (*CampaignResponse, error) {
	var resp CampaignResponse
	if err := c.request(ctx, http.MethodPatch, "/api/campaigns/"+escape(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RescheduleCampaign moves a campaign's start. A nil time sends now.
func (c *Client) RescheduleCampaign(ctx context.Context, id ident.ID, at *time.Time) (*campaign.RescheduleResult, error) {
	var resp campaign.RescheduleResult
	req := &RescheduleRequest{ScheduledAt: at}
	if err := c.request(ctx, http.MethodPatch, "/api/campaigns/"+escape(id)+"/reschedule", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SetCampaignStatus changes a campaign's status
func (c *Client) SetCampaignStatus(ctx context.Context, id ident.ID, status campaign.Status) error {
	return c.request(ctx, http.MethodPatch, "/api/campaigns/"+escape(id)+"/status", &StatusRequest{Status: status}, nil)
}

// DeleteCampaign deletes a campaign
func (c *Client) DeleteCampaign(ctx context.Context, id ident.ID) error {
	return c.request(ctx, http.MethodDelete, "/api/campaigns/"+escape(id), nil, nil)
}

// CampaignRecipients lists a campaign's recipients
func (c *Client) CampaignRecipients(ctx context.Context, id ident.ID) ([]CampaignRecipient, error) {
	var resp []CampaignRecipient
	if err := c.request(ctx, http.MethodGet, "/api/campaigns/"+escape(id)+"/recipients", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ListPipelines lists CRM pipelines
func (c *Client) ListPipelines(ctx context.Context) ([]Pipeline, error) {
	var resp []Pipeline
	if err := c.request(ctx, http.MethodGet, "/api/crm/pipelines", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreatePipeline creates a CRM pipeline
func (c *Client) CreatePipeline(ctx context.Context, req *PipelineRequest) (*Pipeline, error) {
	var resp Pipeline
	if err := c.request(ctx, http.MethodPost, "/api/crm/pipelines", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateDeal creates a CRM deal
func (c *Client) CreateDeal(ctx context.Context, req *DealRequest) (*Deal, error) {
	var resp Deal
	if err := c.request(ctx, http.MethodPost, "/api/crm/deals", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateDeal updates a CRM deal, typically to move it between stages
func (c *Client) UpdateDeal(ctx context.Context, id ident.ID, req *DealRequest) (*Deal, error) {
	var resp Deal
	if err := c.request(ctx, http.MethodPut, "/api/crm/deals/"+escape(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListContacts lists chat contacts
func (c *Client) ListContacts(ctx context.Context, filter ContactFilter) ([]Contact, error) {
	path := "/api/chat/contacts"
	params := url.Values{}
	if filter.Search != "" {
		params.Set("search", filter.Search)
	}
	if filter.Tag != "" {
		params.Set("tag", filter.Tag)
	}
	if filter.Limit > 0 {
		params.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		params.Set("offset", strconv.Itoa(filter.Offset))
	}
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var resp []Contact
	if err := c.request(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateContact creates a chat contact
func (c *Client) CreateContact(ctx context.Context, req *ContactRequest) (*Contact, error) {
	var resp Contact
	if err := c.request(ctx, http.MethodPost, "/api/chat/contacts", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateContact updates a chat contact
func (c *Client) UpdateContact(ctx context.Context, id ident.ID, req *ContactRequest) (*Contact, error) {
	var resp Contact
	if err := c.request(ctx, http.MethodPut, "/api/chat/contacts/"+escape(id), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteContact deletes a chat contact
func (c *Client) DeleteContact(ctx context.Context, id ident.ID) error {
	return c.request(ctx, http.MethodDelete, "/api/chat/contacts/"+escape(id), nil, nil)
}

// ListTags lists contact tags
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var resp []Tag
	if err := c.request(ctx, http.MethodGet, "/api/chat/tags", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// CreateTag creates a contact tag
func (c *Client) CreateTag(ctx context.Context, name, color string) (*Tag, error) {
	var resp Tag
	if err := c.request(ctx, http.MethodPost, "/api/chat/tags", &Tag{Name: name, Color: color}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ImportContacts bulk-creates contacts
func (c *Client) ImportContacts(ctx context.Context, req *ImportRequest) (*ImportResult, error) {
	var resp ImportResult
	if err := c.request(ctx, http.MethodPost, "/api/chat/contacts/import", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
