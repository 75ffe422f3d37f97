package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/lead-router/internal/api/http/handlers"
	"github.com/spec-kit/lead-router/internal/auth"
	"github.com/spec-kit/lead-router/internal/domain"
	"github.com/spec-kit/lead-router/internal/observability"
	"github.com/spec-kit/lead-router/internal/repository/memory"
	"github.com/spec-kit/lead-router/internal/service"
)

type fakeQueue struct {
	updates []domain.AgentUpdate
	err     error
}

func (q *fakeQueue) EnqueueAgentSync(_ context.Context, update domain.AgentUpdate) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.updates = append(q.updates, update)
	return "task-1", nil
}

type okPinger struct{}

func (okPinger) Ping(context.Context) error { return nil }

type testServer struct {
	app    *fiber.App
	store  *memory.Store
	queue  *fakeQueue
	tokens *auth.TokenManager
}

func hashToken(t *testing.T, token string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithLimiter(t, NewSourceLimiter(1000, 1000))
}

func newTestServerWithLimiter(t *testing.T, limiter *SourceLimiter) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	store := memory.New()
	sources := domain.NewSourceRegistry([]string{"aiquinto", "prestitionline", "cessionequinto"})
	retry := service.RetryPolicy{MaxAttempts: 5}

	for _, a := range []*domain.Agent{
		{ID: "A", Name: "Anna", Email: "anna@example.com", Role: domain.AgentRoleAgent, Active: true, Sources: []domain.LeadSource{"aiquinto"}},
		{ID: "B", Name: "Bruno", Email: "bruno@example.com", Role: domain.AgentRoleAgent, Active: true, Sources: []domain.LeadSource{"aiquinto"}},
		{ID: "admin", Role: domain.AgentRoleAdmin, Active: true},
	} {
		require.NoError(t, store.Agents().Save(ctx, a, 0))
	}

	rotation := service.NewRotationState(store)
	engine := service.NewAssignmentEngine(service.AssignmentDependencies{Store: store, Rotation: rotation, Metrics: metrics, Retry: retry})
	ingestion := service.NewIngestionService(service.IngestionDependencies{Engine: engine, Sources: sources, DefaultRegion: "IT"})
	override := service.NewOverrideService(service.OverrideDependencies{Store: store, Metrics: metrics, Retry: retry})
	identity := service.NewIdentitySyncService(service.IdentitySyncDependencies{Store: store, Sources: sources, Retry: retry})
	tokens := auth.NewTokenManager("test-secret", 5)
	queue := &fakeQueue{}

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger, metrics)})
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health: handlers.NewHealthHandler("lead-router", "test", okPinger{}, okPinger{}),
		Leads:  handlers.NewLeadsHandler(ingestion),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Sources:   sources,
			Directory: service.NewAgentDirectory(store),
			Rotation:  rotation,
			Override:  override,
			Leads:     service.NewLeadService(store, logger),
		}),
		Identity:       handlers.NewIdentityHandler(identity, queue, logger),
		Metrics:        handlers.MetricsHandler(metrics.Registry()),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, store.Agents()),
		WebhookTokens: auth.NewTokenVerifier(map[string]string{
			"aiquinto":       hashToken(t, "aiq-token"),
			"cessionequinto": hashToken(t, "cq-token"),
			"identity":       hashToken(t, "idp-token"),
		}),
		IngestLimiter: limiter,
	})
	return &testServer{app: app, store: store, queue: queue, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func (s *testServer) adminHeaders(t *testing.T) map[string]string {
	t.Helper()
	token, _, err := s.tokens.GenerateToken("admin", domain.AgentRoleAdmin)
	require.NoError(t, err)
	return map[string]string{"Authorization": "Bearer " + token}
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, body)
	return d
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestWebhookIngestion(t *testing.T) {
	s := newTestServer(t)
	hook := map[string]string{auth.WebhookTokenHeader: "aiq-token"}
	lead := map[string]any{"external_ref": "f-1", "full_name": "Mario Rossi", "email": "mario@example.com"}

	status, body := s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", lead, hook)
	require.Equal(t, nethttp.StatusCreated, status)
	first := data(t, body)
	require.Equal(t, "A", first["assigned_agent_id"])
	require.Equal(t, "new", first["status"])

	status, body = s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", lead, hook)
	require.Equal(t, nethttp.StatusOK, status)
	require.Equal(t, first["lead_id"], data(t, body)["lead_id"])
	require.Equal(t, true, data(t, body)["duplicate"])

	status, body = s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", map[string]any{"full_name": "Luigi", "email": "l@example.com"}, hook)
	require.Equal(t, nethttp.StatusCreated, status)
	require.Equal(t, "B", data(t, body)["assigned_agent_id"])

	t.Run("bad token", func(t *testing.T) {
		status, body := s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", lead, map[string]string{auth.WebhookTokenHeader: "cq-token"})
		require.Equal(t, nethttp.StatusUnauthorized, status)
		require.Equal(t, "UNAUTHORIZED", errorCode(body))
	})

	t.Run("invalid payload", func(t *testing.T) {
		status, body := s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", map[string]any{"email": "x"}, hook)
		require.Equal(t, nethttp.StatusBadRequest, status)
		require.Equal(t, "VALIDATION_FAILED", errorCode(body))
	})

	t.Run("no eligible agents", func(t *testing.T) {
		status, body := s.do(t, nethttp.MethodPost, "/webhooks/leads/cessionequinto",
			map[string]any{"full_name": "Lead", "email": "lead@example.com"},
			map[string]string{auth.WebhookTokenHeader: "cq-token"})
		require.Equal(t, nethttp.StatusAccepted, status)
		d := data(t, body)
		require.Nil(t, d["assigned_agent_id"])
		require.Equal(t, "NO_ELIGIBLE_AGENTS", d["warning"])
	})
}

func TestWebhookRateLimit(t *testing.T) {
	s := newTestServerWithLimiter(t, NewSourceLimiter(0.001, 1))
	hook := map[string]string{auth.WebhookTokenHeader: "aiq-token"}
	lead := map[string]any{"full_name": "Mario", "email": "mario@example.com"}

	status, _ := s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", lead, hook)
	require.Equal(t, nethttp.StatusCreated, status)
	status, body := s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", lead, hook)
	require.Equal(t, nethttp.StatusTooManyRequests, status)
	require.Equal(t, "RATE_LIMITED", errorCode(body))
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.adminHeaders(t)
	hook := map[string]string{auth.WebhookTokenHeader: "aiq-token"}

	_, body := s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto", map[string]any{"full_name": "Mario", "email": "m@example.com"}, hook)
	leadID := data(t, body)["lead_id"].(string)

	t.Run("requires admin", func(t *testing.T) {
		status, _ := s.do(t, nethttp.MethodGet, "/admin/sources/aiquinto/agents", nil, nil)
		require.Equal(t, nethttp.StatusUnauthorized, status)
	})

	t.Run("eligible agents", func(t *testing.T) {
		status, body := s.do(t, nethttp.MethodGet, "/admin/sources/aiquinto/agents", nil, admin)
		require.Equal(t, nethttp.StatusOK, status)
		items := body["data"].([]any)
		require.Len(t, items, 2)
		require.Equal(t, "A", items[0].(map[string]any)["agent_id"])
		require.Equal(t, "anna@example.com", items[0].(map[string]any)["email"])

		status, body = s.do(t, nethttp.MethodGet, "/admin/sources/unknown/agents", nil, admin)
		require.Equal(t, nethttp.StatusBadRequest, status)
		require.Equal(t, "VALIDATION_FAILED", errorCode(body))
	})

	t.Run("reassign leaves cursor alone", func(t *testing.T) {
		status, body := s.do(t, nethttp.MethodPost, "/admin/leads/"+leadID+"/reassign", map[string]any{"agent_id": "B"}, admin)
		require.Equal(t, nethttp.StatusOK, status)
		record := data(t, body)
		require.Equal(t, "manual", record["reason"])
		require.Equal(t, "A", record["previous_agent_id"])
		require.Equal(t, "admin", record["actor_id"])

		status, body = s.do(t, nethttp.MethodGet, "/admin/sources/aiquinto/cursor", nil, admin)
		require.Equal(t, nethttp.StatusOK, status)
		require.Equal(t, "A", data(t, body)["agent_id"])
		require.Equal(t, float64(1), data(t, body)["version"])

		status, body = s.do(t, nethttp.MethodGet, "/admin/leads/"+leadID+"/assignments", nil, admin)
		require.Equal(t, nethttp.StatusOK, status)
		require.Len(t, body["data"].([]any), 2)
	})

	t.Run("reassign to ineligible agent", func(t *testing.T) {
		status, body := s.do(t, nethttp.MethodPost, "/admin/leads/"+leadID+"/reassign", map[string]any{"agent_id": "admin"}, admin)
		require.Equal(t, nethttp.StatusForbidden, status)
		require.Equal(t, "PERMISSION_DENIED", errorCode(body))

		status, _ = s.do(t, nethttp.MethodPost, "/admin/leads/nope/reassign", map[string]any{"agent_id": "A"}, admin)
		require.Equal(t, nethttp.StatusNotFound, status)
	})

	t.Run("status and notes", func(t *testing.T) {
		status, body := s.do(t, nethttp.MethodPatch, "/admin/leads/"+leadID+"/status", map[string]any{"status": "contacted"}, admin)
		require.Equal(t, nethttp.StatusOK, status)
		require.Equal(t, "contacted", data(t, body)["status"])

		status, _ = s.do(t, nethttp.MethodPatch, "/admin/leads/"+leadID+"/status", map[string]any{"status": "new"}, admin)
		require.Equal(t, nethttp.StatusBadRequest, status)

		status, body = s.do(t, nethttp.MethodPost, "/admin/leads/"+leadID+"/notes", map[string]any{"content": "called"}, admin)
		require.Equal(t, nethttp.StatusCreated, status)
		require.Equal(t, "admin", data(t, body)["author_id"])
	})

	t.Run("unassigned listing", func(t *testing.T) {
		s.do(t, nethttp.MethodPost, "/webhooks/leads/cessionequinto",
			map[string]any{"full_name": "Lead", "email": "x@example.com"},
			map[string]string{auth.WebhookTokenHeader: "cq-token"})

		status, body := s.do(t, nethttp.MethodGet, "/admin/leads/unassigned?source=cessionequinto", nil, admin)
		require.Equal(t, nethttp.StatusOK, status)
		items := body["data"].([]any)
		require.Len(t, items, 1)
		require.Equal(t, "no_eligible_agents", items[0].(map[string]any)["assignment_failure"])

		status, _ = s.do(t, nethttp.MethodGet, "/admin/leads/unassigned?since=yesterday", nil, admin)
		require.Equal(t, nethttp.StatusBadRequest, status)
	})
}

func TestIdentityIntake(t *testing.T) {
	s := newTestServer(t)
	idp := map[string]string{auth.WebhookTokenHeader: "idp-token"}

	status, body := s.do(t, nethttp.MethodPost, "/internal/identity/agents",
		map[string]any{"agent_id": "C", "active": true, "sources": []string{"aiquinto"}}, idp)
	require.Equal(t, nethttp.StatusAccepted, status)
	require.Equal(t, "task-1", data(t, body)["task_id"])
	require.Len(t, s.queue.updates, 1)
	require.Equal(t, "C", s.queue.updates[0].AgentID)

	status, _ = s.do(t, nethttp.MethodPost, "/internal/identity/agents", map[string]any{"agent_id": "C"}, nil)
	require.Equal(t, nethttp.StatusUnauthorized, status)

	status, body = s.do(t, nethttp.MethodPost, "/internal/identity/agents", map[string]any{"agent_id": "C", "role": "owner"}, idp)
	require.Equal(t, nethttp.StatusBadRequest, status)
	require.Equal(t, "VALIDATION_FAILED", errorCode(body))

	s.queue.err = errors.New("redis down")
	status, body = s.do(t, nethttp.MethodPost, "/internal/identity/agents", map[string]any{"agent_id": "C"}, idp)
	require.Equal(t, nethttp.StatusServiceUnavailable, status)
	require.Equal(t, "PERSISTENCE_ERROR", errorCode(body))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, nethttp.MethodGet, "/health/ready", nil, nil)
	require.Equal(t, nethttp.StatusOK, status)
	require.Equal(t, "ready", body["status"])

	s.do(t, nethttp.MethodPost, "/webhooks/leads/aiquinto",
		map[string]any{"full_name": "Mario", "email": "m@example.com"},
		map[string]string{auth.WebhookTokenHeader: "aiq-token"})

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(raw), `lead_router_assignment_total{reason="rotation",source="aiquinto"} 1`)

	status, body = s.do(t, nethttp.MethodGet, "/nowhere", nil, nil)
	require.Equal(t, nethttp.StatusNotFound, status)
	require.Equal(t, "NOT_FOUND", errorCode(body))
}
