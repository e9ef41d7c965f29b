// Package store persists conversations keyed by (user_id, thread_id),
// grounded on the pgx/pgxpool usage pattern shared across the retrieval
// pack (nevindra-oasis's store/postgres package, codeready-toolchain-tarsy's
// pkg/database/client.go): a pgxpool.Pool the caller owns, idempotent
// schema init, structured logging with call duration.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vantage-labs/codescout/pkg/exchange"
)

// ConversationStore persists and loads conversations by (user_id, thread_id).
type ConversationStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New returns a ConversationStore backed by an existing pool. The caller
// owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, logger *slog.Logger) *ConversationStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConversationStore{pool: pool, logger: logger}
}

// Init creates the conversations table if it does not already exist. Safe
// to call multiple times.
func (s *ConversationStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS conversations (
			user_id    TEXT NOT NULL,
			thread_id  UUID NOT NULL,
			repo_ref   TEXT NOT NULL,
			exchanges  JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, thread_id)
		)`)
	if err != nil {
		return fmt.Errorf("store: init schema: %w", err)
	}
	return nil
}

// wireConversation is the JSON-serialised shape of exchange.Conversation
// stored in the exchanges column. The event stream does not use it: the
// server emits its own compressed per-exchange snapshots.
type wireConversation struct {
	RepoRef   string          `json:"repo_ref"`
	Exchanges []*wireExchange `json:"exchanges"`
}

type wireExchange struct {
	ID      uuid.UUID            `json:"id"`
	Query   exchange.ParsedQuery `json:"query"`
	Steps   []*wireStep          `json:"steps,omitempty"`
	Paths   []string             `json:"paths,omitempty"`
	Chunks  []exchange.CodeChunk `json:"code_chunks,omitempty"`
	Article string               `json:"article,omitempty"`
	Summary string               `json:"summary,omitempty"`
}

type wireStep struct {
	Kind     exchange.StepKind `json:"kind"`
	Query    string            `json:"query"`
	Paths    []int             `json:"paths,omitempty"`
	Response string            `json:"response,omitempty"`
}

func toWire(conv *exchange.Conversation) wireConversation {
	w := wireConversation{RepoRef: conv.RepoRef, Exchanges: make([]*wireExchange, len(conv.Exchanges))}
	for i, ex := range conv.Exchanges {
		steps := make([]*wireStep, len(ex.Steps))
		for j, st := range ex.Steps {
			steps[j] = &wireStep{Kind: st.Kind, Query: st.Query, Paths: st.Paths, Response: st.Response}
		}
		w.Exchanges[i] = &wireExchange{
			ID: ex.ID, Query: ex.Query, Steps: steps, Paths: ex.Paths,
			Chunks: ex.Chunks, Article: ex.Article, Summary: ex.Summary,
		}
	}
	return w
}

func fromWire(userID string, threadID uuid.UUID, w wireConversation) *exchange.Conversation {
	conv := &exchange.Conversation{UserID: userID, ThreadID: threadID, RepoRef: w.RepoRef}
	for _, we := range w.Exchanges {
		ex := &exchange.Exchange{
			ID: we.ID, Query: we.Query, Paths: we.Paths,
			Chunks: we.Chunks, Article: we.Article, Summary: we.Summary,
			Complete: we.Article != "" || we.Summary != "",
		}
		for _, ws := range we.Steps {
			ex.Steps = append(ex.Steps, &exchange.SearchStep{Kind: ws.Kind, Query: ws.Query, Paths: ws.Paths, Response: ws.Response})
		}
		conv.Exchanges = append(conv.Exchanges, ex)
	}
	return conv
}

// Save upserts the full conversation state for (conv.UserID, conv.ThreadID).
func (s *ConversationStore) Save(ctx context.Context, conv *exchange.Conversation) error {
	start := time.Now()
	payload, err := json.Marshal(toWire(conv))
	if err != nil {
		return fmt.Errorf("store: encoding conversation: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversations (user_id, thread_id, repo_ref, exchanges, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (user_id, thread_id) DO UPDATE
			SET repo_ref = EXCLUDED.repo_ref, exchanges = EXCLUDED.exchanges, updated_at = now()`,
		conv.UserID, conv.ThreadID, conv.RepoRef, payload)
	if err != nil {
		s.logger.Error("store: save failed", "user_id", conv.UserID, "thread_id", conv.ThreadID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("store: saving conversation: %w", err)
	}
	s.logger.Debug("store: save ok", "user_id", conv.UserID, "thread_id", conv.ThreadID, "exchanges", len(conv.Exchanges), "duration", time.Since(start))
	return nil
}

// ErrNotFound is returned by Load when no conversation exists yet for the
// given (user_id, thread_id) — a fresh thread, not an error condition.
var ErrNotFound = fmt.Errorf("store: conversation not found")

// Load fetches the conversation for (userID, threadID), or ErrNotFound if
// this thread has never been saved.
func (s *ConversationStore) Load(ctx context.Context, userID string, threadID uuid.UUID) (*exchange.Conversation, error) {
	start := time.Now()
	var repoRef string
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT repo_ref, exchanges FROM conversations WHERE user_id = $1 AND thread_id = $2`,
		userID, threadID).Scan(&repoRef, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		s.logger.Error("store: load failed", "user_id", userID, "thread_id", threadID, "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("store: loading conversation: %w", err)
	}

	var w wireConversation
	if err := json.Unmarshal(payload, &w); err != nil {
		return nil, fmt.Errorf("store: decoding conversation: %w", err)
	}
	s.logger.Debug("store: load ok", "user_id", userID, "thread_id", threadID, "duration", time.Since(start))
	return fromWire(userID, threadID, w), nil
}
