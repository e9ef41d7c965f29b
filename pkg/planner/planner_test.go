package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vantage-labs/codescout/pkg/llmgateway"
)

func TestFilterAliasesSubstitutesAllOnAmbiguity(t *testing.T) {
	paths := []string{"a.go", "b.go", "c.go"}

	// Exactly one valid alias survives filtering: kept as-is.
	got := FilterAliases([]int{1, 99}, paths, SubstituteAllOnAmbiguity{})
	require.Equal(t, []int{1}, got)

	// Zero survive: substitute all.
	got = FilterAliases([]int{99, -1}, paths, SubstituteAllOnAmbiguity{})
	require.Equal(t, []int{0, 1, 2}, got)

	// More than one survive: substitute all.
	got = FilterAliases([]int{0, 2}, paths, SubstituteAllOnAmbiguity{})
	require.Equal(t, []int{0, 1, 2}, got)
}

func TestFunctionSchemasGatesProc(t *testing.T) {
	without := FunctionSchemas(false)
	require.False(t, containsSchema(without, "proc"))
	require.True(t, containsSchema(without, "none"))

	with := FunctionSchemas(true)
	require.True(t, containsSchema(with, "proc"))
}

func containsSchema(schemas []llmgateway.FunctionSchema, name string) bool {
	for _, s := range schemas {
		if s.Name == name {
			return true
		}
	}
	return false
}
