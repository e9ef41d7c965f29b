// Package planner implements the function-calling planner step: tool
// dispatch, history assembly and trimming, function-schema generation, and
// the answer-synthesis alias policy.
package planner

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/vantage-labs/codescout/pkg/llmgateway"
)

type pathArgs struct {
	Query string `json:"query" jsonschema:"required,description=Free-text search query"`
}

type codeArgs struct {
	Query string `json:"query" jsonschema:"required,description=Free-text search query"`
}

type procArgs struct {
	Query string `json:"query" jsonschema:"required,description=What to extract from the files"`
	Paths []int  `json:"paths" jsonschema:"required,description=Path aliases to read"`
}

type noneArgs struct {
	Paths []int `json:"paths" jsonschema:"description=Path aliases to cite in the answer"`
}

func schemaFor(v any) json.RawMessage {
	// invopop/jsonschema emits a $defs-wrapped root by default; the wire
	// schema only needs the parameters object itself, so the top-level
	// struct is expanded in place.
	r := &jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(v)
	raw, _ := json.Marshal(s)
	return raw
}

// FunctionSchemas returns the wire function schema for the current turn:
// path, code, and answer ("none") are always present; proc is only
// advertised when pathsKnown is true, per spec.md §4.2 step 3 (tool schema
// gating steers the model away from an action it cannot execute).
func FunctionSchemas(pathsKnown bool) []llmgateway.FunctionSchema {
	schemas := []llmgateway.FunctionSchema{
		{Name: "path", Description: "Search for files by path.", Parameters: schemaFor(pathArgs{})},
		{Name: "code", Description: "Search for relevant code by meaning.", Parameters: schemaFor(codeArgs{})},
	}
	if pathsKnown {
		schemas = append(schemas, llmgateway.FunctionSchema{
			Name:        "proc",
			Description: "Read and extract relevant lines from specific files.",
			Parameters:  schemaFor(procArgs{}),
		})
	}
	schemas = append(schemas, llmgateway.FunctionSchema{
		Name:        "none",
		Description: "Answer the user now, citing the given path aliases.",
		Parameters:  schemaFor(noneArgs{}),
	})
	return schemas
}
