// Package agentloop drives one conversational turn: alternating between
// streaming exchange snapshots to the client and invoking the planner,
// under a per-iteration timeout, with scoped-release cancellation
// analytics and at-most-once completion semantics.
package agentloop

import (
	"context"
	"fmt"
	"time"

	"github.com/vantage-labs/codescout/pkg/analytics"
	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/planner"
)

// updateChannelCapacity is the bounded capacity of the update channel
// between the agent and the output stream, per spec.md §4.1.
const updateChannelCapacity = 10

// stepTimeout is the wall-clock ceiling on one iteration (drain + plan),
// per spec.md §4.1.
const stepTimeout = 60 * time.Second

// Snapshot is a compressed exchange update forwarded to the client.
type Snapshot struct {
	Exchange *exchange.Exchange
	Err      error
}

// ConversationStore persists a conversation at the end of a successful turn.
type ConversationStore interface {
	Save(ctx context.Context, conv *exchange.Conversation) error
}

// Agent drives a single turn against conv, emitting Snapshots on Updates.
//
// Updates is the client-facing channel: the agent loop goroutine is its
// sole writer, so server.go's `for snap := range agent.Updates` is safe to
// be its only reader. Tool/planner code (running concurrently on the
// planner's step goroutine) never touches Updates directly — it pushes
// onto the private internal channel instead, which only runIteration's own
// select/drain ever reads. This keeps every channel single-consumer.
type Agent struct {
	Conv    *exchange.Conversation
	Current *exchange.Exchange

	Planner *planner.Planner
	Answer  *planner.AnswerSynthesizer
	Store   ConversationStore
	Sink    analytics.Sink

	Updates chan Snapshot

	internal chan Snapshot
	complete bool
}

// New returns an Agent ready to run one turn for the given exchange, which
// must already be appended to conv.Exchanges by the caller.
func New(conv *exchange.Conversation, current *exchange.Exchange, p *planner.Planner, a *planner.AnswerSynthesizer, store ConversationStore, sink analytics.Sink) *Agent {
	ag := &Agent{
		Conv:     conv,
		Current:  current,
		Planner:  p,
		Answer:   a,
		Store:    store,
		Sink:     sink,
		Updates:  make(chan Snapshot, updateChannelCapacity),
		internal: make(chan Snapshot, updateChannelCapacity),
	}
	p.OnUpdate = func(ex *exchange.Exchange) { ag.push(Snapshot{Exchange: ex}) }
	return ag
}

// Run drives the loop from seed (the Query action extracted from the
// parsed query's plain target) until the planner answers or a fatal error
// occurs. It releases the scoped cancellation-analytics tracker exactly
// once on return, per spec.md §4.1/§9: an event fires iff Run returns
// without having reached normal completion.
func (ag *Agent) Run(ctx context.Context, seed exchange.Action) error {
	defer ag.release()

	action := seed
	for {
		result, err := ag.runIteration(ctx, action)
		if err != nil {
			ag.recordFailure(err)
			return err
		}
		if result.done {
			break
		}
		action = result.next
	}

	if err := ag.Store.Save(ctx, ag.Conv); err != nil {
		err = fmt.Errorf("agentloop: persisting conversation: %w", err)
		ag.recordFailure(err)
		return err
	}
	ag.complete = true
	return nil
}

type iterationResult struct {
	done bool
	next exchange.Action
}

// runIteration races draining buffered updates against the planner
// producing the next action, under stepTimeout, then drains any residual
// updates before returning — the ordering guarantee of spec.md §5 that no
// update is ever dropped on a state transition. runIteration's select is
// the only reader of the internal channel; every update it sees (here or
// in the residual drain) is delivered onward to the client-facing Updates
// channel, never discarded.
func (ag *Agent) runIteration(ctx context.Context, action exchange.Action) (iterationResult, error) {
	stepCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	type stepOutcome struct {
		res planner.Result
		err error
	}
	stepDone := make(chan stepOutcome, 1)
	go func() {
		res, err := ag.Planner.Step(stepCtx, ag.Conv, ag.Current, action)
		stepDone <- stepOutcome{res, err}
	}()

	var outcome stepOutcome
	for planning := true; planning; {
		select {
		case update := <-ag.internal:
			ag.deliver(update)
		case outcome = <-stepDone:
			planning = false
		case <-stepCtx.Done():
			return iterationResult{}, &exchange.Error{Kind: exchange.ErrTimeout, Message: "agent step timed out", Duration: stepTimeout, Cause: stepCtx.Err()}
		}
	}

	ag.drainResidual()

	if outcome.err != nil {
		return iterationResult{}, exchange.ProcessingError(outcome.err)
	}

	if outcome.res.Done {
		if err := ag.synthesizeAnswer(ctx, outcome.res.Answer); err != nil {
			return iterationResult{}, err
		}
		return iterationResult{done: true}, nil
	}

	return iterationResult{next: outcome.res.Next}, nil
}

// synthesizeAnswer runs after the planner has finished and stepDone has been
// drained, so nothing else is concurrently producing on internal at this
// point; it delivers straight to the client-facing channel.
func (ag *Agent) synthesizeAnswer(ctx context.Context, answer exchange.Action) error {
	err := ag.Answer.Synthesize(ctx, ag.Conv, ag.Current, answer.Paths, func(u planner.ArticleUpdate) {
		ag.Current.Article = u.Article
		if u.Complete {
			ag.Current.Summary = u.Summary
			ag.Current.Complete = true
		}
		ag.deliver(Snapshot{Exchange: ag.Current})
	})
	if err != nil {
		return exchange.ProcessingError(err)
	}
	return nil
}

// push is called by tool/planner code (on the planner's step goroutine) to
// hand a snapshot to the loop. It is the only writer of internal.
func (ag *Agent) push(s Snapshot) {
	ag.internal <- s
}

// deliver hands a snapshot to the client-facing Updates channel. Only the
// agent loop goroutine ever calls this, so Updates has exactly one writer
// and server.go's range loop is its only reader.
func (ag *Agent) deliver(s Snapshot) {
	ag.Updates <- s
}

func (ag *Agent) drainResidual() {
	for {
		select {
		case update := <-ag.internal:
			ag.deliver(update)
		default:
			return
		}
	}
}

func (ag *Agent) recordFailure(err error) {
	if ag.Sink == nil {
		return
	}
	kind := "processing"
	fields := map[string]any{"error": err.Error()}
	var typed *exchange.Error
	if asError(err, &typed) {
		kind = string(typed.Kind)
		if typed.Kind == exchange.ErrTimeout {
			fields["duration"] = typed.Duration.String()
		}
	}
	ag.Sink.Record(analytics.Event{Name: "turn_failed", Fields: mergeKind(fields, kind)})
}

func mergeKind(fields map[string]any, kind string) map[string]any {
	fields["kind"] = kind
	return fields
}

func asError(err error, target **exchange.Error) bool {
	for err != nil {
		if e, ok := err.(*exchange.Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// release implements the scoped-release analytics pattern of spec.md §9:
// unless Run reached normal completion, emit a cancellation event exactly
// once. Modelled as a deferred call rather than a Drop impl, matching the
// teacher's own defer-based cleanup idiom.
func (ag *Agent) release() {
	if ag.complete {
		return
	}
	if ag.Sink != nil {
		ag.Sink.Record(analytics.Event{Name: "agent_cancelled", Fields: map[string]any{"output_stage": "cancelled"}})
	}
}
