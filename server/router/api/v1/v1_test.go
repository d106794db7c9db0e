package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/sellwise/sellwise/internal/profile"
	"github.com/sellwise/sellwise/server/assistant"
	"github.com/sellwise/sellwise/server/finops"
	"github.com/sellwise/sellwise/server/llm"
	"github.com/sellwise/sellwise/store"
	"github.com/sellwise/sellwise/store/db/memory"
)

// echoProvider answers every generation by echoing the last user message.
type echoProvider struct{}

func (echoProvider) GenerateText(_ context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.GenerateResponse{Content: "echo: " + last.Content, Model: "echo-1"}, nil
}

func (p echoProvider) GenerateWithTools(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	return p.GenerateText(ctx, req)
}

func (echoProvider) StreamGeneration(context.Context, *llm.GenerateRequest) (<-chan llm.Chunk, <-chan error) {
	chunks := make(chan llm.Chunk)
	errs := make(chan error)
	close(chunks)
	close(errs)
	return chunks, errs
}

func (echoProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{MaxTokens: 4096}
}

func newTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	st := store.New(memory.NewDB())
	t.Cleanup(func() { _ = st.Close() })
	manager := assistant.NewManager(st, nil, assistant.DefaultManagerConfig())
	t.Cleanup(manager.Close)

	registry := llm.NewRegistry()
	require.NoError(t, registry.Register(llm.ProviderConfig{Name: "echo", Enabled: true}, echoProvider{}))
	balancer, err := llm.NewLoadBalancer(registry, llm.BalancerConfig{}, nil)
	require.NoError(t, err)
	monitor := llm.NewHealthMonitor(registry)

	costs := finops.NewCostMonitor(nil)
	pipeline := assistant.NewPipeline(manager, balancer, costs, nil)

	e := echo.New()
	svc := NewAPIV1Service(&profile.Profile{Mode: "demo", Version: "test"}, pipeline, manager, monitor, balancer, costs)
	svc.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestChatEndpoint(t *testing.T) {
	e := newTestServer(t)

	t.Run("answers a chat turn", func(t *testing.T) {
		rec, payload := doJSON(t, e, http.MethodPost, "/api/v1/chat",
			`{"userId":"u1","message":"how are sales?"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "echo: how are sales?", payload["reply"])
		require.NotEmpty(t, payload["sessionId"])
		require.Equal(t, "echo-1", payload["provider"])
	})

	t.Run("rejects a missing user", func(t *testing.T) {
		rec, _ := doJSON(t, e, http.MethodPost, "/api/v1/chat", `{"message":"hi"}`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects a malformed body", func(t *testing.T) {
		rec, _ := doJSON(t, e, http.MethodPost, "/api/v1/chat", `{not json`)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestServer(t)

	rec, payload := doJSON(t, e, http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "healthy", payload["status"])
	require.Equal(t, float64(1), payload["total"])
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestServer(t)

	_, _ = doJSON(t, e, http.MethodPost, "/api/v1/chat", `{"userId":"u1","message":"hi"}`)

	rec, payload := doJSON(t, e, http.MethodGet, "/api/v1/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "test", payload["version"])
	require.Equal(t, float64(1), payload["totalRequests"])
}

func TestContextEndpoints(t *testing.T) {
	e := newTestServer(t)

	_, chat := doJSON(t, e, http.MethodPost, "/api/v1/chat", `{"userId":"u1","sessionId":"s1","message":"hi"}`)
	require.Equal(t, "s1", chat["sessionId"])

	t.Run("returns the session context", func(t *testing.T) {
		rec, payload := doJSON(t, e, http.MethodGet, "/api/v1/contexts/u1/s1", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "u1", payload["userId"])
		history := payload["conversationHistory"].([]any)
		require.Len(t, history, 2)
	})

	t.Run("creates a default context for an unseen session", func(t *testing.T) {
		rec, payload := doJSON(t, e, http.MethodGet, "/api/v1/contexts/u9/s9", "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "u9", payload["userId"])
		require.Empty(t, payload["conversationHistory"])
	})

	t.Run("deletes one session", func(t *testing.T) {
		rec, _ := doJSON(t, e, http.MethodDelete, "/api/v1/contexts/u1/s1", "")
		require.Equal(t, http.StatusNoContent, rec.Code)

		_, payload := doJSON(t, e, http.MethodGet, "/api/v1/contexts/u1/s1", "")
		require.Empty(t, payload["conversationHistory"], "deleted session starts fresh")
	})

	t.Run("deletes all sessions of a user", func(t *testing.T) {
		_, _ = doJSON(t, e, http.MethodPost, "/api/v1/chat", `{"userId":"u2","sessionId":"a","message":"hi"}`)
		_, _ = doJSON(t, e, http.MethodPost, "/api/v1/chat", `{"userId":"u2","sessionId":"b","message":"hi"}`)

		rec, _ := doJSON(t, e, http.MethodDelete, "/api/v1/contexts/u2", "")
		require.Equal(t, http.StatusNoContent, rec.Code)
	})
}
