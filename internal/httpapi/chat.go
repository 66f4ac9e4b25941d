package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/strataplan/orchestrator/internal/intent"
	"github.com/strataplan/orchestrator/internal/metrics"
	"github.com/strataplan/orchestrator/internal/streaming"
	"github.com/strataplan/orchestrator/internal/workflows"
)

const defaultConversationalReply = "I specialize in researching companies. Which one would you like to explore?"

// ChatHandler is the conversational front door: it classifies each
// message and either replies in one turn or runs a full plan workflow,
// streaming its events back as NDJSON.
type ChatHandler struct {
	runner     WorkflowRunner
	classifier *intent.Classifier
	streams    *streaming.Manager
	pacing     time.Duration
	minPasses  int
	logger     *zap.Logger
}

func NewChatHandler(runner WorkflowRunner, classifier *intent.Classifier, streams *streaming.Manager, pacing time.Duration, minPasses int, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		runner:     runner,
		classifier: classifier,
		streams:    streams,
		pacing:     pacing,
		minPasses:  minPasses,
		logger:     logger,
	}
}

// RegisterRoutes registers the chat and legacy research routes.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/chat", h.handleChat)
	mux.HandleFunc("/api/research", h.handleResearch)
}

type chatRequest struct {
	Message             string        `json:"message"`
	ConversationHistory []intent.Turn `json:"conversation_history"`
}

// handleChat serves POST /api/chat. The response is a stream of
// newline-delimited JSON events; the client reads until the connection
// closes. Whatever goes wrong, the stream ends with at most one error
// event rather than hanging.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sw := &streamWriter{w: w, flusher: flusher, pacing: h.pacing}

	decision := h.classifier.Classify(r.Context(), req.Message, req.ConversationHistory)
	if !decision.WantsResearch || !decision.UsableCompany() {
		reply := decision.Response
		if reply == "" {
			reply = defaultConversationalReply
		}
		sw.write(streaming.Event{
			Type:    streaming.KindMessage,
			Role:    "assistant",
			Content: reply,
		})
		metrics.ChatRequests.WithLabelValues("conversational").Inc()
		return
	}

	sw.write(streaming.Event{
		Type:    streaming.KindMessage,
		Role:    "assistant",
		Content: fmt.Sprintf("Great! I'll research **%s** for you. This will take a moment...", decision.Company),
	})

	metrics.ChatRequests.WithLabelValues("research").Inc()
	metrics.RunsStarted.WithLabelValues("chat").Inc()
	h.streamRun(r, sw, workflows.PlanInput{
		Company:           decision.Company,
		Goals:             decision.Goals,
		MinCritiquePasses: h.minPasses,
	})
}

// handleResearch serves the legacy POST /api/research endpoint: a
// structured {company, goals} start that bypasses classification and
// streams raw stage events without the conversational wrapper.
func (h *ChatHandler) handleResearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req workflows.PlanInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
		return
	}
	if req.Company == "" {
		http.Error(w, `{"error":"company required"}`, http.StatusBadRequest)
		return
	}
	if req.MinCritiquePasses <= 0 {
		req.MinCritiquePasses = h.minPasses
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	metrics.RunsStarted.WithLabelValues("legacy").Inc()
	h.streamRun(r, &streamWriter{w: w, flusher: flusher, pacing: h.pacing}, req)
}

// streamRun starts one workflow and forwards its events to the client
// until the run completes or the client disconnects. Subscribing
// happens before the start so no early event can be missed. Diagnostic
// events stay on the operator streams and are not forwarded here.
func (h *ChatHandler) streamRun(r *http.Request, sw *streamWriter, in workflows.PlanInput) {
	workflowID := "plan-" + uuid.NewString()
	ch := h.streams.Subscribe(workflowID, 256)
	defer h.streams.Unsubscribe(workflowID, ch)

	run, err := h.runner.StartPlan(r.Context(), workflowID, in)
	if err != nil {
		h.logger.Error("Failed to start plan run",
			zap.String("workflow_id", workflowID),
			zap.String("company", in.Company),
			zap.Error(err),
		)
		metrics.RunsCompleted.WithLabelValues("start_failed").Inc()
		sw.write(streaming.Event{Type: streaming.KindError, Message: "failed to start research run"})
		return
	}

	done := make(chan error, 1)
	go func() {
		var result workflows.PlanResult
		done <- run.Get(r.Context(), &result)
	}()

	for {
		select {
		case <-r.Context().Done():
			h.cancelRun(workflowID)
			return
		case evt := <-ch:
			h.forward(sw, evt)
		case err := <-done:
			// A cancelled request context makes Get return too, so the
			// disconnect can surface on either branch.
			if r.Context().Err() != nil {
				h.cancelRun(workflowID)
				return
			}
			// Drain any events published before completion.
			for {
				select {
				case evt := <-ch:
					h.forward(sw, evt)
					continue
				default:
				}
				break
			}
			if err != nil {
				h.logger.Error("Plan run failed",
					zap.String("workflow_id", workflowID),
					zap.Error(err),
				)
				metrics.RunsCompleted.WithLabelValues("failed").Inc()
				sw.write(streaming.Event{Type: streaming.KindError, Message: "research run failed"})
				return
			}
			metrics.RunsCompleted.WithLabelValues("completed").Inc()
			return
		}
	}
}

// cancelRun asks Temporal to stop a run whose client went away. The
// request context is already dead, so the cancel uses its own.
func (h *ChatHandler) cancelRun(workflowID string) {
	h.logger.Info("Client disconnected mid-run, cancelling",
		zap.String("workflow_id", workflowID),
	)
	metrics.RunsCompleted.WithLabelValues("cancelled").Inc()
	if err := h.runner.CancelPlan(context.Background(), workflowID); err != nil {
		h.logger.Warn("Cancel failed", zap.String("workflow_id", workflowID), zap.Error(err))
	}
}

func (h *ChatHandler) forward(sw *streamWriter, evt streaming.Event) {
	if evt.Type == streaming.KindDiagnostic {
		return
	}
	sw.write(evt)
}

// streamWriter emits NDJSON lines with a pacing delay between events so
// intermediary buffers cannot coalesce them.
type streamWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	pacing  time.Duration
	wrote   bool
}

func (s *streamWriter) write(evt streaming.Event) {
	if s.wrote && s.pacing > 0 {
		time.Sleep(s.pacing)
	}
	s.w.Write(append(evt.Marshal(), '\n'))
	s.flusher.Flush()
	s.wrote = true
	metrics.SessionEventsForwarded.WithLabelValues(evt.Type).Inc()
}
