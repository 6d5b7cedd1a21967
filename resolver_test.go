package toolloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTools_DeclaredTakePrecedence(t *testing.T) {
	declared := returning("foo", "declared")
	extra := returning("foo", "extra")
	other := returning("bar", "bar")

	table := resolveTools([]Tool{declared}, []Tool{extra, other})
	require.Len(t, table, 2)
	assert.Same(t, declared, table["foo"])
	assert.Same(t, other, table["bar"])
}

func TestResolveTools_FirstWinsAndNilSkipped(t *testing.T) {
	first := returning("foo", 1)
	second := returning("foo", 2)
	table := resolveTools([]Tool{nil, first, second})
	require.Len(t, table, 1)
	assert.Same(t, first, table["foo"])
}

func TestResolveTools_Empty(t *testing.T) {
	assert.Empty(t, resolveTools(nil))
	assert.Empty(t, resolveTools(nil, nil, []Tool{}))
}

func TestToolTable_Resolve(t *testing.T) {
	inv := returning("run", 1)
	decl := &minDecl{name: "ask"}
	table := resolveTools([]Tool{inv, decl})

	tests := []struct {
		name string
		kind ToolKind
	}{
		{"run", ToolInvocable},
		{"ask", ToolDeclarationOnly},
		{"missing", ToolUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := table.Resolve(tt.name)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.kind == ToolInvocable, res.Invoker != nil)
			assert.Equal(t, tt.kind != ToolUnknown, res.Tool != nil)
		})
	}
	assert.Equal(t, "declaration-only", ToolDeclarationOnly.String())
}

func TestToolTable_TerminationReason(t *testing.T) {
	full := resolveTools([]Tool{returning("foo", 1), &minDecl{name: "ask"}})
	foo := CallRequest{ID: "1", Name: "foo"}
	ask := CallRequest{ID: "2", Name: "ask"}
	bar := CallRequest{ID: "3", Name: "bar"}

	tests := []struct {
		name               string
		table              ToolTable
		batch              []CallRequest
		terminateOnUnknown bool
		terminate          bool
	}{
		{"empty table continues", ToolTable{}, []CallRequest{bar}, false, false},
		{"empty table terminates on unknown", ToolTable{}, []CallRequest{bar}, true, true},
		{"all invocable", full, []CallRequest{foo}, true, false},
		{"unknown reported as not found", full, []CallRequest{foo, bar}, false, false},
		{"unknown terminates", full, []CallRequest{foo, bar}, true, true},
		{"declaration-only always terminates", full, []CallRequest{foo, ask}, false, true},
		{"declaration-only terminates with flag", full, []CallRequest{ask}, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := tt.table.terminationReason(tt.batch, tt.terminateOnUnknown)
			assert.Equal(t, tt.terminate, reason != "", "reason %q", reason)
		})
	}
}
