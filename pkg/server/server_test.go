package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vantage-labs/codescout/pkg/exchange"
)

type stubLoader struct {
	conv *exchange.Conversation
	err  error
}

func (s stubLoader) Load(ctx context.Context, userID string, threadID uuid.UUID) (*exchange.Conversation, error) {
	return s.conv, s.err
}

type stubParser struct {
	q   exchange.ParsedQuery
	err error
}

func (s stubParser) Parse(raw string) (exchange.ParsedQuery, error) { return s.q, s.err }

type recordingFeedbackSink struct {
	got *Feedback
}

func (r *recordingFeedbackSink) RecordFeedback(ctx context.Context, fb Feedback) error {
	r.got = &fb
	return nil
}

func newTestServer() *Server {
	return New(&Server{Parser: stubParser{}, Loader: stubLoader{}})
}

func TestHandleQueryRejectsMissingQueryOrRepo(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/query?q=&repo_ref=", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQueryRejectsUnauthenticated(t *testing.T) {
	srv := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/query?q=find+parser&repo_ref=org/repo", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleQueryRejectsEmptyTarget(t *testing.T) {
	srv := New(&Server{
		Parser: stubParser{q: exchange.ParsedQuery{RepoRef: "org/repo"}},
		Loader: stubLoader{},
	})

	req := httptest.NewRequest(http.MethodGet, "/query?q=repo:org/repo&repo_ref=org/repo", nil)
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleQueryRejectsInvalidThreadID(t *testing.T) {
	srv := New(&Server{
		Parser: stubParser{q: exchange.ParsedQuery{Target: "find parser"}},
		Loader: stubLoader{},
	})

	req := httptest.NewRequest(http.MethodGet, "/query?q=find+parser&repo_ref=org/repo&thread_id=not-a-uuid", nil)
	req.Header.Set("X-User-ID", "u1")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleFeedbackRecordsAndReturnsNoContent(t *testing.T) {
	sink := &recordingFeedbackSink{}
	srv := New(&Server{Parser: stubParser{}, Loader: stubLoader{}, Feedback: sink})

	threadID, queryID := uuid.New(), uuid.New()
	body, err := json.Marshal(map[string]any{
		"feedback":  map[string]string{"type": "positive"},
		"thread_id": threadID,
		"query_id":  queryID,
		"repo_ref":  "org/repo",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, sink.got)
	require.True(t, sink.got.Positive)
	require.Equal(t, threadID, sink.got.ThreadID)
	require.Equal(t, queryID, sink.got.QueryID)
}

func TestHandleFeedbackRejectsMalformedBody(t *testing.T) {
	srv := New(&Server{Parser: stubParser{}, Loader: stubLoader{}})

	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompressElidesEmptyFields(t *testing.T) {
	ex := exchange.NewExchange(exchange.ParsedQuery{Target: "x"})
	out := compress(ex)
	_, hasSteps := out["steps"]
	_, hasChunks := out["code_chunks"]
	_, hasArticle := out["article"]
	require.False(t, hasSteps)
	require.False(t, hasChunks)
	require.False(t, hasArticle)

	ex.Article = "partial draft"
	out = compress(ex)
	require.Equal(t, "partial draft", out["article"])
}

func TestParseOrNewUUID(t *testing.T) {
	got, err := parseOrNewUUID("")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, got)

	id := uuid.New()
	got, err = parseOrNewUUID(id.String())
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = parseOrNewUUID("not-a-uuid")
	require.Error(t, err)
}
