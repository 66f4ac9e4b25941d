package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/strataplan/orchestrator/internal/intent"
	"github.com/strataplan/orchestrator/internal/metrics"
	"github.com/strataplan/orchestrator/internal/streaming"
	"github.com/strataplan/orchestrator/internal/workflows"
)

type stubLLM struct {
	response string
	err      error
}

func (s *stubLLM) Generate(_ context.Context, _ string) (string, error) {
	return s.response, s.err
}

type fakeHandle struct {
	done chan struct{}
	err  error
}

func (h *fakeHandle) Get(ctx context.Context, _ interface{}) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fakeRunner publishes a scripted event sequence for the started run
// and completes the handle once everything is published. With hang set
// the handle never completes, so only the caller's context can end the
// stream.
type fakeRunner struct {
	streams     *streaming.Manager
	events      []streaming.Event
	startErr    error
	runErr      error
	hang        bool
	startedID   string
	startedIn   workflows.PlanInput
	cancelled   bool
	cancelledID string
}

func (f *fakeRunner) StartPlan(_ context.Context, workflowID string, in workflows.PlanInput) (RunHandle, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.startedID = workflowID
	f.startedIn = in
	done := make(chan struct{})
	if f.hang {
		return &fakeHandle{done: done}, nil
	}
	go func() {
		for _, e := range f.events {
			f.streams.Publish(workflowID, e)
		}
		close(done)
	}()
	return &fakeHandle{done: done, err: f.runErr}, nil
}

func (f *fakeRunner) CancelPlan(_ context.Context, workflowID string) error {
	f.cancelled = true
	f.cancelledID = workflowID
	return nil
}

func decodeLines(t *testing.T, body *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var lines []map[string]interface{}
	sc := bufio.NewScanner(body)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m), "line: %s", sc.Text())
		lines = append(lines, m)
	}
	return lines
}

func newChatHandler(t *testing.T, llmResponse string, llmErr error, runner *fakeRunner) (*ChatHandler, *streaming.Manager) {
	t.Helper()
	streams := streaming.NewManager(64)
	if runner != nil {
		runner.streams = streams
	}
	classifier := intent.NewClassifier(&stubLLM{response: llmResponse, err: llmErr}, zaptest.NewLogger(t))
	var r WorkflowRunner
	if runner != nil {
		r = runner
	}
	return NewChatHandler(r, classifier, streams, 0, 1, zaptest.NewLogger(t)), streams
}

func postJSON(h http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestChatConversationalReply(t *testing.T) {
	h, _ := newChatHandler(t, `{"wants_research": false, "company": null, "goals": "", "response": "Try Acme, Globex, or Initech."}`, nil, nil)

	rec := postJSON(h.handleChat, "/api/chat", `{"message":"suggest some companies"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	lines := decodeLines(t, rec.Body)
	require.Len(t, lines, 1)
	assert.Equal(t, "message", lines[0]["type"])
	assert.Equal(t, "assistant", lines[0]["role"])
	assert.Contains(t, lines[0]["content"], "Acme")
}

func TestChatMalformedClassifierOutputStillReplies(t *testing.T) {
	h, _ := newChatHandler(t, "definitely not json", nil, nil)

	rec := postJSON(h.handleChat, "/api/chat", `{"message":"hello"}`)

	lines := decodeLines(t, rec.Body)
	require.Len(t, lines, 1)
	assert.Equal(t, "message", lines[0]["type"])
	assert.NotEmpty(t, lines[0]["content"])
}

func TestChatResearchRunStreamsEvents(t *testing.T) {
	runner := &fakeRunner{events: []streaming.Event{
		{Type: streaming.KindStage, Stage: workflows.StageResearch},
		{Type: streaming.KindDiagnostic, Stage: workflows.StageCritique, Message: "parse drift"},
		{Type: streaming.KindStage, Stage: workflows.StageCritique},
		{Type: streaming.KindStage, Stage: workflows.StageSynthesize},
	}}
	h, _ := newChatHandler(t, `{"wants_research": true, "company": "Acme Corp", "goals": "expansion", "response": ""}`, nil, runner)

	rec := postJSON(h.handleChat, "/api/chat", `{"message":"Research Acme Corp for expansion"}`)

	lines := decodeLines(t, rec.Body)
	require.Len(t, lines, 4)

	// Acknowledgment first, then stage events in publish order; the
	// diagnostic stays off the chat stream.
	assert.Equal(t, "message", lines[0]["type"])
	assert.Contains(t, lines[0]["content"], "I'll research **Acme Corp**")
	assert.Equal(t, "stage", lines[1]["type"])
	assert.Equal(t, workflows.StageResearch, lines[1]["stage"])
	assert.Equal(t, workflows.StageCritique, lines[2]["stage"])
	assert.Equal(t, workflows.StageSynthesize, lines[3]["stage"])

	assert.True(t, strings.HasPrefix(runner.startedID, "plan-"))
}

func TestChatStartFailureEmitsSingleError(t *testing.T) {
	runner := &fakeRunner{startErr: errors.New("temporal unreachable")}
	h, _ := newChatHandler(t, `{"wants_research": true, "company": "Acme", "goals": "", "response": ""}`, nil, runner)

	rec := postJSON(h.handleChat, "/api/chat", `{"message":"Research Acme"}`)

	lines := decodeLines(t, rec.Body)
	require.Len(t, lines, 2)
	assert.Equal(t, "message", lines[0]["type"])
	assert.Equal(t, "error", lines[1]["type"])
	assert.NotEmpty(t, lines[1]["message"])
}

func TestChatClientDisconnectCancelsRun(t *testing.T) {
	runner := &fakeRunner{hang: true}
	h, _ := newChatHandler(t, `{"wants_research": true, "company": "Acme Corp", "goals": "", "response": ""}`, nil, runner)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"Research Acme Corp"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		h.handleChat(rec, req)
	}()
	cancel()

	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("handler kept streaming after the client disconnected")
	}

	assert.True(t, runner.cancelled, "disconnect must cancel the running workflow")
	assert.Equal(t, runner.startedID, runner.cancelledID)
}

func TestChatStreamCountsForwardedEventsSeparately(t *testing.T) {
	runner := &fakeRunner{events: []streaming.Event{
		{Type: streaming.KindStage, Stage: workflows.StageResearch},
	}}
	h, _ := newChatHandler(t, `{"wants_research": true, "company": "Acme Corp", "goals": "", "response": ""}`, nil, runner)

	published := testutil.ToFloat64(metrics.StreamEventsEmitted.WithLabelValues(streaming.KindStage))
	forwarded := testutil.ToFloat64(metrics.SessionEventsForwarded.WithLabelValues(streaming.KindStage))

	postJSON(h.handleChat, "/api/chat", `{"message":"Research Acme Corp"}`)

	// Writing to a session must not inflate the publish-side counter.
	assert.Equal(t, published, testutil.ToFloat64(metrics.StreamEventsEmitted.WithLabelValues(streaming.KindStage)))
	assert.Equal(t, forwarded+1, testutil.ToFloat64(metrics.SessionEventsForwarded.WithLabelValues(streaming.KindStage)))
}

func TestChatUnknownCompanyStaysConversational(t *testing.T) {
	runner := &fakeRunner{}
	h, _ := newChatHandler(t, `{"wants_research": true, "company": "unknown", "goals": "", "response": "Which company did you mean?"}`, nil, runner)

	rec := postJSON(h.handleChat, "/api/chat", `{"message":"research the big search company"}`)

	lines := decodeLines(t, rec.Body)
	require.Len(t, lines, 1)
	assert.Equal(t, "message", lines[0]["type"])
	assert.Empty(t, runner.startedID)
}

func TestChatRejectsNonPost(t *testing.T) {
	h, _ := newChatHandler(t, "", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/chat", nil)
	rec := httptest.NewRecorder()
	h.handleChat(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestResearchLegacyEndpointStreamsRawStages(t *testing.T) {
	runner := &fakeRunner{events: []streaming.Event{
		{Type: streaming.KindStage, Stage: workflows.StageResearch},
		{Type: streaming.KindStage, Stage: workflows.StageSynthesize},
	}}
	h, _ := newChatHandler(t, "", nil, runner)

	rec := postJSON(h.handleResearch, "/api/research", `{"company":"Acme Corp","goals":"overview"}`)

	lines := decodeLines(t, rec.Body)
	require.Len(t, lines, 2)

	// No conversational acknowledgment on the legacy endpoint.
	assert.Equal(t, "stage", lines[0]["type"])
	assert.Equal(t, workflows.StageResearch, lines[0]["stage"])
	assert.Equal(t, workflows.StageSynthesize, lines[1]["stage"])
}

func TestResearchLegacyEndpointHonorsClientMinPasses(t *testing.T) {
	runner := &fakeRunner{}
	h, _ := newChatHandler(t, "", nil, runner)

	postJSON(h.handleResearch, "/api/research", `{"company":"Acme Corp","goals":"overview","min_critique_passes":3}`)
	assert.Equal(t, 3, runner.startedIn.MinCritiquePasses)

	postJSON(h.handleResearch, "/api/research", `{"company":"Acme Corp","goals":"overview"}`)
	assert.Equal(t, 1, runner.startedIn.MinCritiquePasses, "handler default applies when the client omits it")
}

func TestResearchLegacyEndpointRequiresCompany(t *testing.T) {
	h, _ := newChatHandler(t, "", nil, &fakeRunner{})
	rec := postJSON(h.handleResearch, "/api/research", `{"goals":"overview"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
