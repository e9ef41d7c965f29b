package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/vantage-labs/codescout/pkg/exchange"
	"github.com/vantage-labs/codescout/pkg/history"
	"github.com/vantage-labs/codescout/pkg/llmgateway"
	"github.com/vantage-labs/codescout/pkg/tokens"
	"github.com/vantage-labs/codescout/pkg/tools"
)

// historyHeadroom is the token headroom trim_history reserves below the
// model's context limit, per spec.md §4.8.
const historyHeadroom = 2048

// AliasPolicy resolves the alias set an Answer action should use once
// out-of-range aliases have been filtered. Named per spec.md §9's Open
// Question so the "substitute all paths on ambiguity" behaviour stays a
// revisitable, swappable seam rather than inlined control flow.
type AliasPolicy interface {
	Resolve(filtered []int, allPaths []string) []int
}

// SubstituteAllOnAmbiguity is the specified default: if filtering leaves
// exactly one alias, keep it; otherwise substitute every currently known
// path. This deliberately widens context when the model's selection is
// ambiguous or empty.
type SubstituteAllOnAmbiguity struct{}

func (SubstituteAllOnAmbiguity) Resolve(filtered []int, allPaths []string) []int {
	if len(filtered) == 1 {
		return filtered
	}
	all := make([]int, len(allPaths))
	for i := range allPaths {
		all[i] = i
	}
	return all
}

// Planner drives one control-loop iteration: execute the bound tool,
// assemble and trim history, call the LLM gateway with the gated function
// schema, and deserialise the result into the next Action.
type Planner struct {
	Gateway      *llmgateway.Client
	Counter      *tokens.Counter
	Model        string
	ContextLimit int

	Path *tools.PathTool
	Code *tools.CodeTool
	Proc *tools.ProcTool

	AliasPolicy AliasPolicy

	// OnUpdate, if set, is called once when a tool step starts (Response
	// still empty) and again once it is replaced with its final response,
	// so the agent loop can forward both snapshots through its update
	// channel per spec.md §4.2/§9.
	OnUpdate func(*exchange.Exchange)
}

// Result is the outcome of one planner Step: either a follow-up action to
// feed back into the loop, or a terminal answer (Done).
type Result struct {
	Next   exchange.Action
	Done   bool
	Answer exchange.Action // valid iff Done
}

// Step executes action's bound tool (unless action is Answer, which is
// terminal and returns early with no follow-up), then asks the LLM for the
// next action.
func (p *Planner) Step(ctx context.Context, conv *exchange.Conversation, current *exchange.Exchange, action exchange.Action) (Result, error) {
	switch action.Kind {
	case exchange.ActionAnswer:
		return Result{Done: true, Answer: action}, nil

	case exchange.ActionQuery:
		// seed action: nothing to execute, proceed straight to planning

	case exchange.ActionPath:
		step := current.AppendStep(exchange.StepPath, action.Query, nil)
		p.notify(current)
		resp, err := p.Path.Run(ctx, conv, current, action.Query)
		if err != nil {
			return Result{}, fmt.Errorf("planner: path tool: %w", err)
		}
		step.Response = resp
		p.notify(current)

	case exchange.ActionCode:
		step := current.AppendStep(exchange.StepCode, action.Query, nil)
		p.notify(current)
		resp, err := p.Code.Run(ctx, conv, current, action.Query)
		if err != nil {
			return Result{}, fmt.Errorf("planner: code tool: %w", err)
		}
		step.Response = resp
		p.notify(current)

	case exchange.ActionProc:
		step := current.AppendStep(exchange.StepProc, action.Query, action.Paths)
		p.notify(current)
		resp, err := p.Proc.Run(ctx, conv, current, action.Query, action.Paths)
		if err != nil {
			return Result{}, fmt.Errorf("planner: proc tool: %w", err)
		}
		step.Response = resp
		p.notify(current)
	}

	next, err := p.askLLM(ctx, conv, current)
	if err != nil {
		return Result{}, err
	}
	return Result{Next: next}, nil
}

func (p *Planner) notify(current *exchange.Exchange) {
	if p.OnUpdate != nil {
		p.OnUpdate(current)
	}
}

func (p *Planner) askLLM(ctx context.Context, conv *exchange.Conversation, current *exchange.Exchange) (exchange.Action, error) {
	sysMsg := tokens.Message{Role: tokens.RoleSystem, Content: systemMessage(conv.AllPaths())}
	msgs := append([]tokens.Message{sysMsg}, history.Build(conv)...)

	trimmed, err := p.Counter.TrimHistory(msgs, p.ContextLimit, historyHeadroom)
	if err != nil {
		return exchange.Action{}, fmt.Errorf("planner: trimming history: %w", err)
	}

	schemas := FunctionSchemas(len(conv.AllPaths()) > 0)

	var name, args string
	err = p.Gateway.Stream(ctx, llmgateway.ChatRequest{
		Messages:  trimmed,
		Functions: schemas,
		Model:     p.Model,
	}, func(f llmgateway.Fragment) bool {
		if f.FunctionName != "" && name == "" {
			name = f.FunctionName
		}
		args += f.FunctionArgsPart
		return true
	})
	if err != nil {
		return exchange.Action{}, fmt.Errorf("planner: LLM call: %w", err)
	}

	action, err := exchange.FromFunctionCall(name, args)
	if err != nil {
		return exchange.Action{}, fmt.Errorf("planner: deserialising action: %w", err)
	}
	return action, nil
}

func systemMessage(paths []string) string {
	if len(paths) == 0 {
		return "You are a code-search assistant. No files have been discovered yet; use path or code to find some."
	}
	var b strings.Builder
	b.WriteString("You are a code-search assistant. Known files (alias: path):\n")
	for i, p := range paths {
		fmt.Fprintf(&b, "%d: %s\n", i, p)
	}
	return b.String()
}

// FilterAliases drops any alias outside the current path count, then
// resolves the final alias set via policy.
func FilterAliases(aliases []int, allPaths []string, policy AliasPolicy) []int {
	var filtered []int
	for _, a := range aliases {
		if a >= 0 && a < len(allPaths) {
			filtered = append(filtered, a)
		}
	}
	return policy.Resolve(filtered, allPaths)
}
