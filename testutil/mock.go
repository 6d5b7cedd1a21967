// Package testutil provides test helpers for toolloop (MockTool, a scripted Session).
package testutil

import (
	"context"

	"github.com/skosovsky/toolloop"
)

// MockTool is a configurable Invoker implementation for tests.
type MockTool struct {
	NameVal   string
	DescVal   string
	ParamsVal map[string]any
	InvokeFn  func(ctx context.Context, args map[string]any) (any, error)
}

// Name returns the tool name.
func (m *MockTool) Name() string {
	if m.NameVal != "" {
		return m.NameVal
	}
	return "mock"
}

// Description returns the tool description.
func (m *MockTool) Description() string {
	return m.DescVal
}

// Parameters returns the parameters schema (or empty map).
func (m *MockTool) Parameters() map[string]any {
	if m.ParamsVal != nil {
		return m.ParamsVal
	}
	return map[string]any{}
}

// Invoke runs InvokeFn if set, otherwise returns nil.
func (m *MockTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	if m.InvokeFn != nil {
		return m.InvokeFn(ctx, args)
	}
	return nil, nil
}

// MockDeclaration is a declaration-only Tool for tests.
type MockDeclaration struct {
	NameVal string
}

// Name returns the tool name.
func (m *MockDeclaration) Name() string { return m.NameVal }

// Description returns an empty description.
func (m *MockDeclaration) Description() string { return "" }

// Parameters returns an empty schema.
func (m *MockDeclaration) Parameters() map[string]any { return map[string]any{} }

// Func returns a MockTool named name running fn.
func Func(name string, fn func(ctx context.Context, args map[string]any) (any, error)) *MockTool {
	return &MockTool{NameVal: name, InvokeFn: fn}
}

// Returning returns a MockTool named name that always returns v.
func Returning(name string, v any) *MockTool {
	return Func(name, func(context.Context, map[string]any) (any, error) { return v, nil })
}

// Failing returns a MockTool named name that always fails with err.
func Failing(name string, err error) *MockTool {
	return Func(name, func(context.Context, map[string]any) (any, error) { return nil, err })
}

var (
	_ toolloop.Invoker = (*MockTool)(nil)
	_ toolloop.Tool    = (*MockDeclaration)(nil)
)
