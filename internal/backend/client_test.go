package backend

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foxzi/zapdesk/internal/campaign"
	"github.com/foxzi/zapdesk/internal/ident"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Auth   string
	Body   string
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			Auth:   r.Header.Get("Authorization"),
			Body:   string(body),
		})
		mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientSendsBearerToken(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 7, "name": "Promo", "status": "processing", "sent": 3, "total": 10},
		})
	})

	c := NewClient(srv.URL+"/", StaticToken("abc"), time.Second)
	list, err := c.ListCampaigns(context.Background())
	require.NoError(t, err)

	require.Len(t, list, 1)
	assert.Equal(t, ident.ID("7"), list[0].ID)
	assert.Equal(t, campaign.StatusProcessing, list[0].Status)
	assert.Equal(t, 3, list[0].Sent)

	require.Len(t, *calls, 1)
	assert.Equal(t, "Bearer abc", (*calls)[0].Auth)
	assert.Equal(t, "/api/campaigns", (*calls)[0].Path)
}

func TestClientNoTokenNoHeader(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})

	c := NewClient(srv.URL, StaticToken(""), time.Second)
	_, err := c.ListChannels(context.Background())
	require.NoError(t, err)
	assert.Empty(t, (*calls)[0].Auth)
}

func TestClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    any
		target  error
		message string
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, body: map[string]string{"error": "token expired"}, target: ErrUnauthorized, message: "API error: token expired"},
		{name: "not found", status: http.StatusNotFound, body: map[string]string{"message": "campaign not found"}, target: ErrNotFound, message: "API error: campaign not found"},
		{name: "server error", status: http.StatusInternalServerError, body: "oops", message: "HTTP 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				if s, ok := tt.body.(string); ok {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(s))
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			c := NewClient(srv.URL, StaticToken("t"), time.Second)
			err := c.DeleteCampaign(context.Background(), "9")
			require.Error(t, err)
			assert.EqualError(t, err, tt.message)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			} else {
				assert.NotErrorIs(t, err, ErrUnauthorized)
				assert.NotErrorIs(t, err, ErrNotFound)
			}
		})
	}
}

func TestSetCampaignStatus(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	c := NewClient(srv.URL, StaticToken("t"), time.Second)
	require.NoError(t, c.SetCampaignStatus(context.Background(), "12", campaign.StatusPaused))

	got := (*calls)[0]
	assert.Equal(t, http.MethodPatch, got.Method)
	assert.Equal(t, "/api/campaigns/12/status", got.Path)
	assert.JSONEq(t, `{"status":"paused"}`, got.Body)
}

func TestRescheduleCampaign(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "ok", "requeued_count": 4})
	})

	c := NewClient(srv.URL, StaticToken("t"), time.Second)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	res, err := c.RescheduleCampaign(context.Background(), "5", &at)
	require.NoError(t, err)
	assert.Equal(t, 4, res.RequeuedCount)
	assert.Equal(t, "ok", res.Message)

	res, err = c.RescheduleCampaign(context.Background(), "5", nil)
	require.NoError(t, err)
	assert.Equal(t, 4, res.RequeuedCount)

	assert.Equal(t, "/api/campaigns/5/reschedule", (*calls)[0].Path)
	assert.JSONEq(t, `{"scheduledAt":"2026-03-01T09:30:00Z"}`, (*calls)[0].Body)
	assert.JSONEq(t, `{"scheduledAt":null}`, (*calls)[1].Body)
}

func TestLogin(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"token": "jwt",
			"user":  map[string]any{"id": 1, "name": "Ana", "email": "ana@example.com", "tenant_id": 33},
		})
	})

	c := NewClient(srv.URL, nil, time.Second)
	resp, err := c.Login(context.Background(), "ana@example.com", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt", resp.Token)
	assert.Equal(t, ident.ID("33"), resp.User.TenantID)
	assert.JSONEq(t, `{"email":"ana@example.com","password":"secret"}`, (*calls)[0].Body)
}

func TestLoginWithoutToken(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"id": 1}})
	})

	c := NewClient(srv.URL, nil, time.Second)
	_, err := c.Login(context.Background(), "a", "b")
	assert.Error(t, err)
}

func TestInventory(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/channels":
			writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Main", "account_id": 2}})
		case "/api/channels/templates/all":
			writeJSON(w, http.StatusOK, []map[string]any{{"id": "t1", "name": "welcome", "status": "APPROVED", "channel_id": 1}})
		default:
			http.NotFound(w, r)
		}
	})

	c := NewClient(srv.URL, StaticToken("t"), time.Second)
	inv, err := c.Inventory(context.Background())
	require.NoError(t, err)

	ch, ok := inv.Channel("1")
	require.True(t, ok)
	assert.Equal(t, "Main", ch.Name)

	tpl, ok := inv.Template("welcome")
	require.True(t, ok)
	assert.Equal(t, ident.ID("t1"), tpl.ID)

	_, ok = inv.Template("missing")
	assert.False(t, ok)
}

func TestInventoryFailure(t *testing.T) {
	srv, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/channels" {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream"})
	})

	c := NewClient(srv.URL, StaticToken("t"), time.Second)
	_, err := c.Inventory(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list templates")
}

func TestListContactsQuery(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 1, "name": "Bia", "phone": "5511988887777"}})
	})

	c := NewClient(srv.URL, StaticToken("t"), time.Second)
	contacts, err := c.ListContacts(context.Background(), ContactFilter{Search: "bia", Limit: 20})
	require.NoError(t, err)
	require.Len(t, contacts, 1)

	assert.Equal(t, "/api/chat/contacts", (*calls)[0].Path)
	assert.Equal(t, "limit=20&search=bia", (*calls)[0].Query)
}

func TestCreateCampaignPayload(t *testing.T) {
	srv, calls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, map[string]any{"id": 99, "name": "Promo", "status": "scheduled", "message": "created"})
	})

	c := NewClient(srv.URL, StaticToken("t"), time.Second)
	resp, err := c.CreateCampaign(context.Background(), &CampaignRequest{
		Name:         "Promo",
		ChannelID:    "1",
		TemplateID:   "t1",
		TemplateName: "welcome",
		Variables:    []string{"1"},
		Recipients:   []CampaignRecipient{{Phone: "5511988887777", Name: "Bia", Variables: []string{"Bia"}}},
	})
	require.NoError(t, err)
	assert.Equal(t, ident.ID("99"), resp.ID)
	assert.Equal(t, "created", resp.Message)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte((*calls)[0].Body), &body))
	assert.Equal(t, "welcome", body["template_name"])
	assert.Nil(t, body["scheduledAt"])
	assert.NotContains(t, body, "recurrence")
}

func TestRouteOf(t *testing.T) {
	assert.Equal(t, "/api/campaigns/:id/status", routeOf("/api/campaigns/12/status"))
	assert.Equal(t, "/api/chat/contacts", routeOf("/api/chat/contacts?search=x"))
	assert.Equal(t, "/api/channels/templates/all", routeOf("/api/channels/templates/all"))
}
