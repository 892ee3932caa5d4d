package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

type stubService struct {
	storeReq  *models.StoreConversationRequest
	searchQ   *models.SearchQuery
	injectReq *models.ContextInjectionRequest
	healthy   bool
}

func (s *stubService) StoreConversation(ctx context.Context, req models.StoreConversationRequest) (*models.StoreConversationResult, error) {
	s.storeReq = &req
	return &models.StoreConversationResult{
		ConversationID: "cv_1",
		MemoryUnitIDs:  []string{"mu_1"},
		MessagesStored: len(req.Messages),
	}, nil
}

func (s *stubService) SearchMemories(ctx context.Context, query models.SearchQuery) (*models.SearchOutcome, error) {
	s.searchQ = &query
	u := models.NewMemoryUnit("mu_1", "cv_1", "proj")
	u.Title = "Past fix"
	u.Summary = "Switched to keyset pagination."
	return &models.SearchOutcome{
		Results: []*models.SearchResult{{MemoryUnit: u, RelevanceScore: 0.9}},
		Timings: models.SearchTimings{TotalMs: 4},
	}, nil
}

func (s *stubService) InjectContext(ctx context.Context, req models.ContextInjectionRequest) (*models.ContextInjectionResult, error) {
	s.injectReq = &req
	return &models.ContextInjectionResult{EnhancedPrompt: "ctx\n\n---\n\n" + req.OriginalPrompt}, nil
}

func (s *stubService) Status(ctx context.Context) *models.ServiceStatus {
	return &models.ServiceStatus{Started: true}
}

func (s *stubService) Health(ctx context.Context) *ports.HealthReport {
	return &ports.HealthReport{Healthy: s.healthy}
}

func newTestServer(svc ports.MemoryService, in io.Reader, out io.Writer) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewServer(svc, "test", logger, in, out)
}

func runRequests(t *testing.T, svc ports.MemoryService, requests ...string) []Response {
	t.Helper()
	var out bytes.Buffer
	srv := newTestServer(svc, strings.NewReader(strings.Join(requests, "\n")), &out)
	require.NoError(t, srv.Run(context.Background()))

	dec := json.NewDecoder(&out)

	// The first frame is always the readiness notification.
	var ready Notification
	require.NoError(t, dec.Decode(&ready))
	require.Equal(t, "notifications/initialized", ready.Method)

	var responses []Response
	for dec.More() {
		var resp Response
		require.NoError(t, dec.Decode(&resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestRunAnnouncesReadinessBeforeReading(t *testing.T) {
	var out bytes.Buffer
	srv := newTestServer(&stubService{}, strings.NewReader(""), &out)
	require.NoError(t, srv.Run(context.Background()))

	var frame struct {
		JSONRPC string         `json:"jsonrpc"`
		Method  string         `json:"method"`
		Params  map[string]any `json:"params"`
	}
	require.NoError(t, json.NewDecoder(&out).Decode(&frame))
	assert.Equal(t, "2.0", frame.JSONRPC)
	assert.Equal(t, "notifications/initialized", frame.Method)
	assert.NotNil(t, frame.Params)
	assert.Empty(t, frame.Params)
}

func TestInitializeHandshake(t *testing.T) {
	responses := runRequests(t, &stubService{},
		`{"jsonrpc": "2.0", "id": 1, "method": "initialize"}`,
		`{"jsonrpc": "2.0", "method": "notifications/initialized"}`,
	)

	// The notification gets no response.
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	result, err := json.Marshal(responses[0].Result)
	require.NoError(t, err)
	var init InitializeResult
	require.NoError(t, json.Unmarshal(result, &init))
	assert.Equal(t, "2024-11-05", init.ProtocolVersion)
	assert.Equal(t, "recall", init.ServerInfo.Name)
}

func TestToolsListExposesAllTools(t *testing.T) {
	responses := runRequests(t, &stubService{},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`,
	)
	require.Len(t, responses, 1)

	result, _ := json.Marshal(responses[0].Result)
	var list ToolsListResult
	require.NoError(t, json.Unmarshal(result, &list))

	names := make([]string, len(list.Tools))
	for i, tool := range list.Tools {
		names[i] = tool.Name
		assert.NotEmpty(t, tool.Description)
		assert.Equal(t, "object", tool.InputSchema["type"])
	}
	assert.Equal(t, []string{"memory_store", "memory_search", "memory_inject", "memory_status", "memory_health"}, names)
}

func TestUnknownMethod(t *testing.T) {
	responses := runRequests(t, &stubService{},
		`{"jsonrpc": "2.0", "id": 1, "method": "resources/list"}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrCodeMethodNotFound, responses[0].Error.Code)
}

func TestToolCallMemoryStore(t *testing.T) {
	svc := &stubService{}
	responses := runRequests(t, svc,
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_store", "arguments": {
			"project_id": "proj", "session_id": "sess_1",
			"messages": [{"role": "user", "content": "hi"}, {"role": "assistant", "content": "hello"}]
		}}}`,
	)
	require.Len(t, responses, 1)
	require.Nil(t, responses[0].Error)

	require.NotNil(t, svc.storeReq)
	assert.Equal(t, "proj", svc.storeReq.ProjectID)
	assert.Len(t, svc.storeReq.Messages, 2)

	text := toolText(t, responses[0])
	assert.Contains(t, text, "cv_1")
	assert.Contains(t, text, "mu_1")
}

func TestToolCallMemorySearch(t *testing.T) {
	svc := &stubService{}
	responses := runRequests(t, svc,
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_search", "arguments": {"query": "pagination", "limit": 3}}}`,
	)
	require.Len(t, responses, 1)

	require.NotNil(t, svc.searchQ)
	assert.Equal(t, "pagination", svc.searchQ.Text)
	assert.Equal(t, 3, svc.searchQ.Limit)
	assert.True(t, svc.searchQ.Rerank)

	text := toolText(t, responses[0])
	assert.Contains(t, text, "Past fix")
}

func TestToolCallMemorySearchDefaultLimit(t *testing.T) {
	svc := &stubService{}
	responses := runRequests(t, svc,
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_search", "arguments": {"query": "pagination"}}}`,
	)
	require.Len(t, responses, 1)

	require.NotNil(t, svc.searchQ)
	assert.Equal(t, models.DefaultSearchLimit, svc.searchQ.Limit)
}

func TestToolCallMemoryInject(t *testing.T) {
	svc := &stubService{}
	responses := runRequests(t, svc,
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_inject", "arguments": {"original_prompt": "fix the bug", "query_text": "pagination", "injection_mode": "minimal"}}}`,
	)
	require.Len(t, responses, 1)

	require.NotNil(t, svc.injectReq)
	assert.Equal(t, "fix the bug", svc.injectReq.OriginalPrompt)
	assert.Equal(t, "pagination", svc.injectReq.QueryText)
	assert.Equal(t, "minimal", svc.injectReq.InjectionMode)
}

func TestToolCallMemoryInjectAcceptsShortAliases(t *testing.T) {
	svc := &stubService{}
	responses := runRequests(t, svc,
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_inject", "arguments": {"prompt": "fix the bug", "mode": "minimal"}}}`,
	)
	require.Len(t, responses, 1)

	require.NotNil(t, svc.injectReq)
	assert.Equal(t, "fix the bug", svc.injectReq.OriginalPrompt)
	assert.Equal(t, "minimal", svc.injectReq.InjectionMode)
}

func TestToolCallValidation(t *testing.T) {
	tests := []struct {
		name string
		req  string
	}{
		{"store without messages", `{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_store", "arguments": {}}}`},
		{"search without query", `{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_search", "arguments": {}}}`},
		{"inject without prompt", `{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_inject", "arguments": {}}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			responses := runRequests(t, &stubService{}, tt.req)
			require.Len(t, responses, 1)
			require.Nil(t, responses[0].Error)

			result, _ := json.Marshal(responses[0].Result)
			var call ToolCallResult
			require.NoError(t, json.Unmarshal(result, &call))
			assert.True(t, call.IsError)
		})
	}
}

func TestToolCallUnknownTool(t *testing.T) {
	responses := runRequests(t, &stubService{},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_forget", "arguments": {}}}`,
	)
	require.Len(t, responses, 1)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrCodeInvalidParams, responses[0].Error.Code)
}

func TestHealthToolFlagsUnhealthyService(t *testing.T) {
	responses := runRequests(t, &stubService{healthy: false},
		`{"jsonrpc": "2.0", "id": 1, "method": "tools/call", "params": {"name": "memory_health", "arguments": {}}}`,
	)
	require.Len(t, responses, 1)

	result, _ := json.Marshal(responses[0].Result)
	var call ToolCallResult
	require.NoError(t, json.Unmarshal(result, &call))
	assert.True(t, call.IsError)
}

func TestParseErrorRecovery(t *testing.T) {
	responses := runRequests(t, &stubService{},
		`{garbage`,
	)
	// Malformed framing yields a parse error response and the loop
	// stops at the corrupted stream.
	require.NotEmpty(t, responses)
	require.NotNil(t, responses[0].Error)
	assert.Equal(t, ErrCodeParseError, responses[0].Error.Code)
}

func toolText(t *testing.T, resp Response) string {
	t.Helper()
	result, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	var call ToolCallResult
	require.NoError(t, json.Unmarshal(result, &call))
	require.NotEmpty(t, call.Content)
	return call.Content[0].Text
}
