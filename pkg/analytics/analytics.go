// Package analytics defines the bounded-payload event sink the agent loop
// and tool executors report to. A real deployment's analytics backend is
// out of scope per the specification; this package owns the narrow
// interface and a logging-backed default implementation, grounded on
// pkg/observability/recorder.go's structured-event-recording shape.
package analytics

import "log/slog"

// Event is one analytics record. Fields carries bounded payload data
// (query text, result counts, truncated prompts) rather than unbounded
// blobs, per spec.md §4.2/§7.
type Event struct {
	Name   string
	Fields map[string]any
}

// Sink receives analytics events. Implementations must not block the
// caller meaningfully; a failing sink must never fail the turn.
type Sink interface {
	Record(e Event)
}

// LoggingSink is the default Sink: it writes every event through slog at
// info level with its fields as structured attributes.
type LoggingSink struct {
	logger *slog.Logger
}

// NewLoggingSink returns a Sink backed by logger, or slog.Default() if nil.
func NewLoggingSink(logger *slog.Logger) *LoggingSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingSink{logger: logger}
}

func (s *LoggingSink) Record(e Event) {
	args := make([]any, 0, len(e.Fields)*2)
	for k, v := range e.Fields {
		args = append(args, k, v)
	}
	s.logger.Info("analytics_event", append([]any{"event", e.Name}, args...)...)
}

// MaxPromptLogLength bounds how much of a raw prompt an event carries.
const MaxPromptLogLength = 2000

// TruncatePrompt keeps the first MaxPromptLogLength runes of prompt for
// inclusion in an event's Fields, appending "..." when it cut anything.
func TruncatePrompt(prompt string) string {
	r := []rune(prompt)
	if len(r) <= MaxPromptLogLength {
		return prompt
	}
	return string(r[:MaxPromptLogLength]) + "..."
}
