// Package llmgateway implements the client contract for the remote
// chat/completion endpoint: streamed text completions, streamed
// function-calling completions, and the one-shot compatibility probe.
// Grounded on pkg/model/openai/openai.go's SSE client shape and
// pkg/httpclient/client.go's retry wrapper.
package llmgateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vantage-labs/codescout/pkg/tokens"
)

// FunctionSchema describes one callable tool on the wire, generated from a
// Go argument struct by the planner via invopop/jsonschema.
type FunctionSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// ChatRequest is the gateway's chat endpoint contract.
type ChatRequest struct {
	Messages         []tokens.Message
	Functions        []FunctionSchema
	Model            string
	Temperature      float64
	FrequencyPenalty float64
	SessionRefID     string
}

// Fragment is one piece of a streamed completion: either a plain text
// delta, or part of a function call (name fixed after the first non-empty
// occurrence, arguments concatenated across fragments per spec.md §4.2
// step 4).
type Fragment struct {
	Text             string
	FunctionName     string
	FunctionArgsPart string
}

// Client is the LLM gateway contract the planner, code tool, and answer
// synthesis stage call through.
type Client struct {
	baseURL    string
	bearer     string
	httpClient *http.Client
}

// New returns a Client bound to the gateway's base URL.
func New(baseURL, bearerToken string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		bearer:     bearerToken,
		httpClient: &http.Client{Timeout: 0}, // streaming: no blanket request timeout
	}
}

// Stream issues one chat completion and calls yield for each fragment in
// order, stopping early if yield returns false. The request is retried
// once on a transient network error per the gateway's retry policy,
// mirroring pkg/httpclient's SmartRetry strategy for idempotent GETs
// adapted here to a single bounded retry on the initial connection only
// (mid-stream failures are not retried, since partial function-call state
// cannot be safely replayed).
func (c *Client) Stream(ctx context.Context, req ChatRequest, yield func(Fragment) bool) error {
	body, err := json.Marshal(c.wireRequest(req))
	if err != nil {
		return fmt.Errorf("llmgateway: encoding request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("llmgateway: chat endpoint returned status %d", resp.StatusCode)
	}

	reader := bufio.NewReader(resp.Body)
	var eventType string
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			line = bytes.TrimRight(line, "\r\n")
			switch {
			case bytes.HasPrefix(line, []byte("event: ")):
				eventType = string(bytes.TrimPrefix(line, []byte("event: ")))
			case bytes.HasPrefix(line, []byte("data: ")):
				data := bytes.TrimPrefix(line, []byte("data: "))
				if string(data) == "[DONE]" {
					return nil
				}
				frag, parseErr := parseFragment(eventType, data)
				if parseErr != nil {
					return fmt.Errorf("llmgateway: parsing stream fragment: %w", parseErr)
				}
				if !yield(frag) {
					return nil
				}
			}
		}
		if err != nil {
			return nil // upstream closed the stream; treat EOF as normal completion
		}
	}
}

func (c *Client) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("llmgateway: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.bearer != "" {
			req.Header.Set("Authorization", "Bearer "+c.bearer)
		}

		resp, err := c.httpClient.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	return nil, fmt.Errorf("llmgateway: request failed after retry: %w", lastErr)
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireChatRequest struct {
	Messages         []wireMessage  `json:"messages"`
	Functions        []wireFunction `json:"functions,omitempty"`
	Model            string         `json:"model,omitempty"`
	Temperature      float64        `json:"temperature"`
	FrequencyPenalty float64        `json:"frequency_penalty"`
	SessionRefID     string         `json:"session_reference_id,omitempty"`
	BearerToken      string         `json:"bearer_token,omitempty"`
}

type wireFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

func (c *Client) wireRequest(req ChatRequest) wireChatRequest {
	msgs := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}
	fns := make([]wireFunction, len(req.Functions))
	for i, f := range req.Functions {
		fns[i] = wireFunction{Name: f.Name, Description: f.Description, Parameters: f.Parameters}
	}
	return wireChatRequest{
		Messages:         msgs,
		Functions:        fns,
		Model:            req.Model,
		Temperature:      req.Temperature,
		FrequencyPenalty: req.FrequencyPenalty,
		SessionRefID:     req.SessionRefID,
		BearerToken:      c.bearer,
	}
}

type wireFragment struct {
	Text         string `json:"text"`
	FunctionCall *struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function_call"`
}

func parseFragment(eventType string, data []byte) (Fragment, error) {
	var wf wireFragment
	if err := json.Unmarshal(data, &wf); err != nil {
		return Fragment{}, err
	}
	if wf.FunctionCall != nil {
		return Fragment{FunctionName: wf.FunctionCall.Name, FunctionArgsPart: wf.FunctionCall.Arguments}, nil
	}
	return Fragment{Text: wf.Text}, nil
}

// CheckCompatibility probes the gateway's /compatibility endpoint once
// with the caller's build version, per spec.md §6: a 406 response means
// the client is incompatible; any other non-200 is a generic failure.
// There is deliberately no retry here, unlike Stream, matching the
// original implementation's single-attempt probe.
func (c *Client) CheckCompatibility(ctx context.Context, buildVersion string) (incompatible bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/compatibility?v="+buildVersion, nil)
	if err != nil {
		return false, fmt.Errorf("llmgateway: building compatibility request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("llmgateway: compatibility check failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return false, nil
	case http.StatusNotAcceptable:
		return true, nil
	default:
		return false, fmt.Errorf("llmgateway: compatibility check returned status %d", resp.StatusCode)
	}
}
