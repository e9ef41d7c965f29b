package exchange

import (
	"encoding/json"
	"fmt"
)

// ActionKind tags the variant of Action.
type ActionKind string

const (
	ActionQuery  ActionKind = "query"
	ActionPath   ActionKind = "path"
	ActionCode   ActionKind = "code"
	ActionProc   ActionKind = "proc"
	ActionAnswer ActionKind = "answer"
)

// Action is the tagged variant the planner produces: the seed Query action
// of a turn, or one of Path/Code/Proc/Answer in response to the LLM's
// function call. Answer is terminal: it yields no follow-up action.
type Action struct {
	Kind  ActionKind
	Text  string // Query only
	Query string // Path/Code/Proc
	Paths []int  // Proc/Answer: path aliases
}

// wireName is the tool name as it appears on the LLM function-call wire.
// The answer action is named "none" on the wire.
func (a Action) wireName() string {
	switch a.Kind {
	case ActionPath:
		return "path"
	case ActionCode:
		return "code"
	case ActionProc:
		return "proc"
	case ActionAnswer:
		return "none"
	default:
		return ""
	}
}

type pathArgs struct {
	Query string `json:"query"`
}

type codeArgs struct {
	Query string `json:"query"`
}

type procArgs struct {
	Query string `json:"query"`
	Paths []int  `json:"paths"`
}

type noneArgs struct {
	Paths []int `json:"paths"`
}

// MarshalJSON encodes the action as the tagged {name: args} wire shape
// spec.md §4.2 step 5 describes, e.g. {"path": {"query": "..."}}.
func (a Action) MarshalJSON() ([]byte, error) {
	var args any
	switch a.Kind {
	case ActionPath:
		args = pathArgs{Query: a.Query}
	case ActionCode:
		args = codeArgs{Query: a.Query}
	case ActionProc:
		args = procArgs{Query: a.Query, Paths: a.Paths}
	case ActionAnswer:
		args = noneArgs{Paths: a.Paths}
	default:
		return nil, fmt.Errorf("exchange: cannot marshal action kind %q", a.Kind)
	}
	return json.Marshal(map[string]any{a.wireName(): args})
}

// FromFunctionCall deserialises the {name, arguments} wire pair the planner
// folds streamed function-call fragments into (spec.md §4.2 step 4) by
// wrapping it into the tagged {name: args} shape and unmarshalling. Returns
// a processing error on malformed JSON or an unrecognised tool name.
func FromFunctionCall(name, arguments string) (Action, error) {
	var rawArgs json.RawMessage
	if arguments == "" {
		rawArgs = json.RawMessage("{}")
	} else {
		rawArgs = json.RawMessage(arguments)
	}

	switch name {
	case "path":
		var a pathArgs
		if err := json.Unmarshal(rawArgs, &a); err != nil {
			return Action{}, fmt.Errorf("exchange: malformed path arguments: %w", err)
		}
		return Action{Kind: ActionPath, Query: a.Query}, nil
	case "code":
		var a codeArgs
		if err := json.Unmarshal(rawArgs, &a); err != nil {
			return Action{}, fmt.Errorf("exchange: malformed code arguments: %w", err)
		}
		return Action{Kind: ActionCode, Query: a.Query}, nil
	case "proc":
		var a procArgs
		if err := json.Unmarshal(rawArgs, &a); err != nil {
			return Action{}, fmt.Errorf("exchange: malformed proc arguments: %w", err)
		}
		return Action{Kind: ActionProc, Query: a.Query, Paths: a.Paths}, nil
	case "none":
		var a noneArgs
		if err := json.Unmarshal(rawArgs, &a); err != nil {
			return Action{}, fmt.Errorf("exchange: malformed none arguments: %w", err)
		}
		return Action{Kind: ActionAnswer, Paths: a.Paths}, nil
	default:
		return Action{}, fmt.Errorf("exchange: unknown tool %q", name)
	}
}

// QueryAction builds the seed action of a turn from the parsed query's
// plain target text.
func QueryAction(target string) Action {
	return Action{Kind: ActionQuery, Text: target}
}
