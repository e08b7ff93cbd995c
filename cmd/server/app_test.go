package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"permission-gate/internal/admin"
	"permission-gate/internal/approval"
	"permission-gate/internal/auth"
	"permission-gate/internal/authz"
	"permission-gate/internal/condition"
	"permission-gate/internal/config"
	"permission-gate/internal/instrument"
	"permission-gate/internal/metadata"
	"permission-gate/internal/permission"
	"permission-gate/internal/source"
)

const authSecret = "test-auth-secret"

const permissions = `{
	"meta": {"rolesACLActivated": true},
	"data": {
		"invoices": {
			"collection": {
				"browseEnabled": true,
				"readEnabled": true,
				"editEnabled": false,
				"addEnabled": false,
				"deleteEnabled": false,
				"exportEnabled": {"roles": [1]}
			},
			"actions": {
				"Send": {
					"triggerEnabled": {"roles": [1]},
					"approvalRequired": {"roles": [2]},
					"userApprovalEnabled": {"roles": [1, 3]},
					"selfApprovalEnabled": {"roles": []},
					"approvalRequiredConditions": [{"filter": {"field": "status", "operator": "equal", "value": "draft"}}]
				}
			}
		}
	},
	"stats": []
}`

const schema = `{"collections": [{
	"name": "invoices",
	"virtual": true,
	"fields": [{"name": "status", "type": "string"}],
	"actions": [{"name": "Send", "endpoint": "/forest/actions/send", "http_method": "POST"}],
	"records": [{"id": 1, "status": "draft"}, {"id": 2, "status": "sent"}]
}]}`

func newTestApp(t *testing.T) (*testServerApp, *atomic.Int64, *atomic.Bool) {
	t.Helper()
	var fetches atomic.Int64
	var failing atomic.Bool
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(permissions))
	}))
	t.Cleanup(upstream.Close)

	collections, err := metadata.Parse([]byte(schema), nil)
	require.NoError(t, err)
	reg := metadata.NewRegistry()
	reg.Load(collections)

	snapshots, err := permission.NewMemoryStore(8)
	require.NoError(t, err)
	client := source.NewClient(config.SourceConfig{URL: upstream.URL, TimeoutMs: 1000, BreakerFailures: 100},
		source.WithRetryInterval(time.Millisecond))
	cache := permission.NewCache(client, snapshots, time.Hour)
	engine := approval.NewEngine(condition.NewEvaluator(nil, nil), auth.NewApprovalVerifier("env"), nil)

	events := instrument.NewEventBuffer(100)
	app := newApp(deps{
		authSecret: authSecret,
		gateway:    authz.NewGateway(cache, engine, reg, nil),
		admin:      admin.NewHandler(cache, reg, "", nil),
		events:     events,
		tracer:     instrument.NewTracer(events, nil, 1),
		logger:     zap.NewNop(),
	})
	return &testServerApp{t: t, app: app}, &fetches, &failing
}

type testServerApp struct {
	t   *testing.T
	app *fiber.App
}

func (s *testServerApp) do(method, path string, user *metadata.UserContext, body string) (int, map[string]any) {
	s.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if user != nil {
		token, err := auth.GenerateAccessToken(user, authSecret, time.Minute)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req)
	require.NoError(s.t, err)
	raw, _ := io.ReadAll(resp.Body)
	var out map[string]any
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

var (
	accountant = &metadata.UserContext{ID: "10", RoleID: 1, RenderingID: 5}
	clerk      = &metadata.UserContext{ID: "20", RoleID: 2, RenderingID: 5}
	operator   = &metadata.UserContext{ID: "1", RoleID: 1, RenderingID: 5, Roles: []string{"admin"}}
)

func TestHealth(t *testing.T) {
	s, _, _ := newTestApp(t)
	status, body := s.do("GET", "/health", nil, "")
	assert.Equal(t, 200, status)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthorizeEndpoint(t *testing.T) {
	s, fetches, _ := newTestApp(t)

	status, _ := s.do("POST", "/authorize", nil, `{"kind": "browse", "collection": "invoices"}`)
	assert.Equal(t, 401, status)

	status, _ = s.do("POST", "/authorize", accountant, `{"kind": "browse", "collection": "invoices"}`)
	assert.Equal(t, 204, status)

	status, _ = s.do("POST", "/authorize", accountant, `{"kind": "export", "collection": "invoices"}`)
	assert.Equal(t, 204, status)
	assert.Equal(t, int64(1), fetches.Load())

	status, body := s.do("POST", "/authorize", clerk, `{"kind": "export", "collection": "invoices"}`)
	assert.Equal(t, 403, status)
	assert.Equal(t, "ACCESS_DENIED", errorCode(body))

	status, body = s.do("POST", "/authorize", accountant, `{"collection": "invoices"}`)
	assert.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do("POST", "/authorize", accountant, `{"kind": "chart"}`)
	assert.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do("POST", "/authorize", accountant, `{"kind": "browse", "collection": "invoices", "filter": {"aggregator": "and", "conditions": [null]}}`)
	assert.Equal(t, 422, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
}

func TestAuthorizeEndpoint_RequireApproval(t *testing.T) {
	s, _, _ := newTestApp(t)
	send := `{"kind": "action", "collection": "invoices", "endpoint": "/forest/actions/send", "http_method": "POST",
		"parameters": {"data": {"attributes": {"ids": ["1"]}}}}`

	status, body := s.do("POST", "/authorize", clerk, send)
	assert.Equal(t, 403, status)
	assert.Equal(t, "REQUIRE_APPROVAL", errorCode(body))
	e := body["error"].(map[string]any)
	assert.Equal(t, []any{float64(1), float64(3)}, e["approvers"])

	status, _ = s.do("POST", "/authorize", accountant, send)
	assert.Equal(t, 204, status)

	sent := strings.Replace(send, `["1"]`, `["2"]`, 1)
	status, body = s.do("POST", "/authorize", clerk, sent)
	assert.Equal(t, 403, status)
	assert.Equal(t, "TRIGGER_FORBIDDEN", errorCode(body))
}

func TestAuthorizeEndpoint_UpstreamFailure(t *testing.T) {
	s, _, failing := newTestApp(t)
	failing.Store(true)

	status, body := s.do("POST", "/authorize", accountant, `{"kind": "browse", "collection": "invoices"}`)
	assert.Equal(t, 502, status)
	assert.Equal(t, "UPSTREAM_FETCH_FAILED", errorCode(body))

	failing.Store(false)
	status, _ = s.do("POST", "/authorize", accountant, `{"kind": "browse", "collection": "invoices"}`)
	assert.Equal(t, 204, status, "failures are not cached")
}

func TestAdminRoutes(t *testing.T) {
	s, fetches, _ := newTestApp(t)

	status, _ := s.do("POST", "/authorize", accountant, `{"kind": "read", "collection": "invoices"}`)
	require.Equal(t, 204, status)
	require.Equal(t, int64(1), fetches.Load())

	status, _ = s.do("DELETE", "/cache", accountant, "")
	assert.Equal(t, 403, status)

	status, _ = s.do("DELETE", "/cache", operator, "")
	assert.Equal(t, 204, status)

	status, _ = s.do("POST", "/authorize", accountant, `{"kind": "read", "collection": "invoices"}`)
	require.Equal(t, 204, status)
	assert.Equal(t, int64(2), fetches.Load(), "reset drops cached snapshots")

	status, body := s.do("GET", "/_admin/collections", operator, "")
	assert.Equal(t, 200, status)
	assert.Len(t, body["data"], 1)

	status, _ = s.do("GET", "/_admin/collections/orders", operator, "")
	assert.Equal(t, 404, status)

	status, body = s.do("GET", "/_events?component=gateway", operator, "")
	assert.Equal(t, 200, status)
	assert.NotEmpty(t, body["data"])
}
