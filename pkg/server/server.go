// Package server exposes the conversational agent over HTTP: a
// server-sent-event query endpoint, a fire-and-forget feedback endpoint,
// and the one-shot LLM-gateway compatibility probe, per spec.md §6.
// Routing is grounded on the teacher's go-chi/chi/v5 usage
// (pkg/transport/http_metrics_middleware.go); the SSE framing follows the
// same ResponseWriter/http.Flusher idiom that middleware is built to
// preserve.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vantage-labs/codescout/pkg/agentloop"
	"github.com/vantage-labs/codescout/pkg/analytics"
	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/index"
	"github.com/vantage-labs/codescout/pkg/llmgateway"
	"github.com/vantage-labs/codescout/pkg/planner"
	"github.com/vantage-labs/codescout/pkg/store"
	"github.com/vantage-labs/codescout/pkg/tokens"
	"github.com/vantage-labs/codescout/pkg/tools"
)

// BuildVersion is probed against the gateway's compatibility endpoint.
// Overridden at build time via -ldflags, defaulting to "dev".
var BuildVersion = "dev"

// QueryParser turns a raw query string into the structured target/filters
// pair. A parse that yields an empty Target is not an error here;
// handleQuery rejects it with 400 as a user error (spec.md §7).
type QueryParser interface {
	Parse(raw string) (exchange.ParsedQuery, error)
}

// ConversationLoader loads a prior conversation for (userID, threadID). It
// returns store.ErrNotFound if none exists yet, in which case handleQuery
// starts a fresh empty conversation.
type ConversationLoader interface {
	Load(ctx context.Context, userID string, threadID uuid.UUID) (*exchange.Conversation, error)
}

// FeedbackSink records user feedback on a prior answer.
type FeedbackSink interface {
	RecordFeedback(ctx context.Context, fb Feedback) error
}

// Feedback is the decoded POST /feedback body.
type Feedback struct {
	Positive bool
	Comment  string // only for negative feedback
	ThreadID uuid.UUID
	QueryID  uuid.UUID
	RepoRef  string
}

// Server wires the HTTP surface to the agent loop's collaborators.
type Server struct {
	Gateway  *llmgateway.Client
	Index    index.Index
	Store    agentloop.ConversationStore
	Loader   ConversationLoader
	Parser   QueryParser
	Sink     analytics.Sink
	Feedback FeedbackSink

	PlannerModel, ProcModel, AnswerModel string
	PlannerContextLim, AnswerContextLim  int

	router chi.Router
}

// New builds the chi router and wires each route handler.
func New(s *Server) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer) // panic-catcher at the stream boundary, per spec.md §4.1

	r.Get("/query", s.handleQuery)
	r.Post("/feedback", s.handleFeedback)

	s.router = r
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

// handleQuery implements spec.md §6's SSE query endpoint.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	rawQuery := q.Get("q")
	repoRef := q.Get("repo_ref")
	if rawQuery == "" || repoRef == "" {
		http.Error(w, "q and repo_ref are required", http.StatusBadRequest)
		return
	}

	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	threadID, err := parseOrNewUUID(q.Get("thread_id"))
	if err != nil {
		http.Error(w, "invalid thread_id", http.StatusBadRequest)
		return
	}

	parsed, err := s.Parser.Parse(rawQuery)
	if err != nil {
		http.Error(w, fmt.Sprintf("unparseable query: %s", err), http.StatusBadRequest)
		return
	}
	if parsed.Target == "" {
		http.Error(w, "query lacks a plain-text target", http.StatusBadRequest)
		return
	}

	conv, err := s.Loader.Load(ctx, userID, threadID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			http.Error(w, "failed to load conversation", http.StatusInternalServerError)
			return
		}
		conv = &exchange.Conversation{UserID: userID, ThreadID: threadID}
	}
	conv.RepoRef = repoRef

	// Truncation is driven by the parameter's presence: absent means no
	// truncation, while the all-zeros UUID value means "start over".
	if q.Has("parent_exchange_id") {
		parentID, err := uuid.Parse(q.Get("parent_exchange_id"))
		if err != nil {
			http.Error(w, "invalid parent_exchange_id", http.StatusBadRequest)
			return
		}
		if !conv.Truncate(&parentID) {
			http.Error(w, "parent_exchange_id not found in thread", http.StatusBadRequest)
			return
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if incompatible, err := s.Gateway.CheckCompatibility(ctx, BuildVersion); err != nil {
		writeEvent(w, flusher, errEvent("failed to check compatibility"))
		return
	} else if incompatible {
		writeEvent(w, flusher, errEvent("incompatible client"))
		return
	}

	queryID := uuid.New()
	writeEvent(w, flusher, mustJSON(map[string]string{"thread_id": threadID.String(), "query_id": queryID.String()}))

	current := exchange.NewExchange(parsed)
	current.ID = queryID
	conv.Exchanges = append(conv.Exchanges, current)

	agent := s.buildAgent(conv, current)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range agent.Updates {
			if snap.Err != nil {
				writeEvent(w, flusher, errEvent(snap.Err.Error()))
				continue
			}
			writeEvent(w, flusher, okEvent(snap.Exchange))
		}
	}()

	seed := exchange.QueryAction(parsed.Target)
	runErr := agent.Run(ctx, seed)
	close(agent.Updates)
	<-done

	if runErr != nil {
		var typed *exchange.Error
		if errors.As(runErr, &typed) {
			writeEvent(w, flusher, errEvent(typed.Message))
		} else {
			writeEvent(w, flusher, errEvent(runErr.Error()))
		}
	}

	writeDone(w, flusher)
}

func (s *Server) buildAgent(conv *exchange.Conversation, current *exchange.Exchange) *agentloop.Agent {
	counter := tokens.NewCounter(s.PlannerModel)

	p := &planner.Planner{
		Gateway:      s.Gateway,
		Counter:      counter,
		Model:        s.PlannerModel,
		ContextLimit: s.PlannerContextLim,
		Path:         &tools.PathTool{Index: s.Index, Sink: s.Sink},
		Code:         &tools.CodeTool{Index: s.Index, Gateway: s.Gateway, HydeLLM: s.PlannerModel, Sink: s.Sink},
		Proc:         &tools.ProcTool{Index: s.Index, Gateway: s.Gateway, Counter: tokens.NewCounter(s.ProcModel), Model: s.ProcModel, Sink: s.Sink},
		AliasPolicy:  planner.SubstituteAllOnAmbiguity{},
	}

	a := &planner.AnswerSynthesizer{
		Gateway:      s.Gateway,
		Counter:      tokens.NewCounter(s.AnswerModel),
		Files:        s.Index,
		Model:        s.AnswerModel,
		ContextLimit: s.AnswerContextLim,
		AliasPolicy:  planner.SubstituteAllOnAmbiguity{},
		RandomIndex:  rand.Intn,
	}

	return agentloop.New(conv, current, p, a, s.Store, s.Sink)
}

// handleFeedback implements spec.md §6's fire-and-forget feedback endpoint.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feedback struct {
			Type     string `json:"type"`
			Feedback string `json:"feedback"`
		} `json:"feedback"`
		ThreadID uuid.UUID `json:"thread_id"`
		QueryID  uuid.UUID `json:"query_id"`
		RepoRef  string    `json:"repo_ref,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	fb := Feedback{
		Positive: body.Feedback.Type == "positive",
		Comment:  body.Feedback.Feedback,
		ThreadID: body.ThreadID,
		QueryID:  body.QueryID,
		RepoRef:  body.RepoRef,
	}

	if s.Feedback != nil {
		if err := s.Feedback.RecordFeedback(r.Context(), fb); err != nil {
			slog.Error("server: recording feedback failed", "error", err)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseOrNewUUID(raw string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(raw)
}

func mustJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

func okEvent(ex *exchange.Exchange) []byte {
	return mustJSON(map[string]any{"Ok": compress(ex)})
}

func errEvent(msg string) []byte {
	return mustJSON(map[string]any{"Err": msg})
}

// compress elides transient/empty fields from the snapshot, per spec.md
// §6: "compressed exchange snapshots... are the same schema with empty
// transient fields elided."
func compress(ex *exchange.Exchange) map[string]any {
	out := map[string]any{"id": ex.ID, "paths": ex.Paths}
	if len(ex.Steps) > 0 {
		out["steps"] = ex.Steps
	}
	if len(ex.Chunks) > 0 {
		out["code_chunks"] = ex.Chunks
	}
	if ex.Article != "" {
		out["article"] = ex.Article
	}
	if ex.Summary != "" {
		out["summary"] = ex.Summary
	}
	return out
}

func writeEvent(w http.ResponseWriter, f http.Flusher, data []byte) {
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeDone(w http.ResponseWriter, f http.Flusher) {
	fmt.Fprint(w, "data: [DONE]\n\n")
	f.Flush()
}
