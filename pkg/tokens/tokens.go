// Package tokens provides byte-pair-encoding token counting and the three
// budgeting operations the agent loop and its tools rely on: trimming a
// message history to fit a completion's headroom, trimming a line list by
// cumulative token count, and truncating arbitrary text to a token ceiling
// without splitting a multi-byte rune across a token boundary.
package tokens

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Hidden is the sentinel content TrimHistory substitutes for a message it
// elects to drop.
const Hidden = "[HIDDEN]"

// Role is the role of a history message as seen by the LLM gateway.
type Role string

const (
	RoleSystem         Role = "system"
	RoleUser           Role = "user"
	RoleAssistant      Role = "assistant"
	RoleFunctionCall   Role = "function_call"
	RoleFunctionReturn Role = "function_return"
)

// Message is one entry of the LLM-visible history.
type Message struct {
	Role    Role
	Content string
}

// Counter counts tokens for a given model, caching the encoding lookup.
type Counter struct {
	model string

	mu    sync.RWMutex
	cache map[string]*tiktoken.Tiktoken
}

// NewCounter returns a Counter bound to model. Encodings are resolved lazily
// and cached; an unknown model falls back to cl100k_base.
func NewCounter(model string) *Counter {
	return &Counter{model: model, cache: make(map[string]*tiktoken.Tiktoken)}
}

func (c *Counter) encoding() (*tiktoken.Tiktoken, error) {
	c.mu.RLock()
	enc, ok := c.cache[c.model]
	c.mu.RUnlock()
	if ok {
		return enc, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.cache[c.model]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("tokens: no encoding available for %q: %w", c.model, err)
		}
	}
	c.cache[c.model] = enc
	return enc, nil
}

// Count returns the token count of s.
func (c *Counter) Count(s string) int {
	enc, err := c.encoding()
	if err != nil {
		return len(s) / 4 // degrade gracefully rather than panic on a bad model name
	}
	return len(enc.Encode(s, nil, nil))
}

// tokensPerMessage is the fixed per-message overhead OpenAI-style chat
// formats add around role and content; tokensPerReply accounts for the
// assistant reply-priming tokens added once per request.
const (
	tokensPerMessage = 3
	tokensPerReply   = 3
)

// CountMessages returns the total token cost of a message list as the
// completion request would see it.
func (c *Counter) CountMessages(msgs []Message) int {
	total := tokensPerReply
	for _, m := range msgs {
		total += tokensPerMessage + c.Count(string(m.Role)) + c.Count(m.Content)
	}
	return total
}

// TrimHistory hides the oldest trimmable message (any user, assistant, or
// function_return message whose content is not already Hidden) until the
// message list's token cost leaves at least headroom tokens below
// contextLimit. System messages and function_call messages are never
// trimmed. Returns an error if headroom cannot be reached because no
// trimmable message remains.
func (c *Counter) TrimHistory(msgs []Message, contextLimit, headroom int) ([]Message, error) {
	out := make([]Message, len(msgs))
	copy(out, msgs)

	for contextLimit-c.CountMessages(out) < headroom {
		idx := -1
		for i, m := range out {
			if !trimmable(m) {
				continue
			}
			idx = i
			break
		}
		if idx == -1 {
			return nil, fmt.Errorf("tokens: cannot trim history below headroom %d: no trimmable message remains", headroom)
		}
		out[idx].Content = Hidden
	}
	return out, nil
}

func trimmable(m Message) bool {
	switch m.Role {
	case RoleUser, RoleAssistant, RoleFunctionReturn:
		return m.Content != Hidden
	default:
		return false
	}
}

// TrimLinesByTokens returns the longest prefix of lines whose cumulative
// token count is strictly less than max. If the full list already totals
// under max, the full list is returned unchanged. This is a prefix trim: it
// drops the tail, never the head.
func (c *Counter) TrimLinesByTokens(lines []string, max int) []string {
	total := 0
	for i, line := range lines {
		cost := c.Count(line)
		if total+cost >= max {
			return lines[:i]
		}
		total += cost
	}
	return lines
}

// LimitTokens returns the longest valid-UTF-8 prefix of text whose token
// count is at most max. Because a token can encode several bytes that
// straddle a rune boundary, the candidate token list is shrunk one token at
// a time until the decoded bytes are valid UTF-8. Returns "" if even a
// single token does not decode to valid text.
func (c *Counter) LimitTokens(text string, max int) string {
	enc, err := c.encoding()
	if err != nil {
		if max <= 0 || len(text) == 0 {
			return ""
		}
		if max*4 >= len(text) {
			return text
		}
		return validUTF8Prefix(text[:max*4])
	}

	ids := enc.Encode(text, nil, nil)
	if len(ids) > max {
		ids = ids[:max]
	}
	for len(ids) > 0 {
		decoded := enc.Decode(ids)
		if validUTF8Prefix(decoded) == decoded {
			return decoded
		}
		ids = ids[:len(ids)-1]
	}
	return ""
}

func validUTF8Prefix(s string) string {
	for i := len(s); i > 0; i-- {
		if utf8.ValidString(s[:i]) {
			return s[:i]
		}
	}
	return ""
}
