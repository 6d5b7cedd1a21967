package toolloop

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"time"
)

// ToolMetadata is implemented by tools created with NewTool, NewFunc and NewDeclaration.
// The executor uses Timeout() to bound each invocation when set.
type ToolMetadata interface {
	Timeout() time.Duration
	Tags() []string
}

// Validatable is implemented by argument types of NewTool that check their own business rules.
// Validate runs after decoding; a non-nil error is reported to the model as a ClientError.
type Validatable interface {
	Validate() error
}

// declaration is a Tool without an execution body.
type declaration struct {
	name        string
	description string
	schema      map[string]any
	opts        toolOptions
}

// tool is the Invoker built by NewTool or NewFunc.
type tool struct {
	declaration
	invoke func(context.Context, map[string]any) (any, error)
}

// NewTool builds an Invoker from a typed function. The parameter schema is generated from T;
// arguments are decoded into T through JSON. Arguments that cannot be decoded produce a ClientError
// so the model can correct the call. Errors returned by fn are reported unchanged.
// Returns an error if schema generation fails (e.g. unsupported type).
func NewTool[T any, R any](
	name, description string,
	fn func(ctx context.Context, args T) (R, error),
	opts ...ToolOption,
) (Invoker, error) {
	if name == "" {
		return nil, errors.New("tool name must not be empty")
	}
	if fn == nil {
		return nil, errors.New("tool handler must not be nil")
	}
	o, err := applyToolOptions(opts)
	if err != nil {
		return nil, err
	}
	schema, err := parametersFor[T](name, o)
	if err != nil {
		return nil, err
	}
	invoke := func(ctx context.Context, args map[string]any) (any, error) {
		typed, err := decodeArgs[T](args)
		if err != nil {
			return nil, err
		}
		if err := validateArgs(&typed); err != nil {
			return nil, err
		}
		return fn(ctx, typed)
	}
	return &tool{
		declaration: declaration{name: name, description: description, schema: schema, opts: o},
		invoke:      invoke,
	}, nil
}

// NewFunc creates an Invoker from a raw JSON Schema map and a function receiving the raw argument map.
// Useful for runtime API integration. The provided schemaMap is not mutated; a copy is made before any
// modifications (e.g. WithStrict). A nil schemaMap declares an object without properties.
func NewFunc(
	name, description string,
	schemaMap map[string]any,
	fn func(ctx context.Context, args map[string]any) (any, error),
	opts ...ToolOption,
) (Invoker, error) {
	if fn == nil {
		return nil, errors.New("tool handler must not be nil")
	}
	decl, err := newDeclaration(name, description, schemaMap, opts)
	if err != nil {
		return nil, err
	}
	return &tool{declaration: *decl, invoke: fn}, nil
}

// NewDeclaration creates a declaration-only Tool: it is advertised to the model but has no body here.
// A call to it ends the loop and is left to the caller.
func NewDeclaration(name, description string, schemaMap map[string]any, opts ...ToolOption) (Tool, error) {
	decl, err := newDeclaration(name, description, schemaMap, opts)
	if err != nil {
		return nil, err
	}
	return decl, nil
}

// NewDeclarationFor is NewDeclaration with the parameter schema generated from T, as NewTool does.
func NewDeclarationFor[T any](name, description string, opts ...ToolOption) (Tool, error) {
	if name == "" {
		return nil, errors.New("tool name must not be empty")
	}
	o, err := applyToolOptions(opts)
	if err != nil {
		return nil, err
	}
	schema, err := parametersFor[T](name, o)
	if err != nil {
		return nil, err
	}
	return &declaration{name: name, description: description, schema: schema, opts: o}, nil
}

func newDeclaration(name, description string, schemaMap map[string]any, opts []ToolOption) (*declaration, error) {
	if name == "" {
		return nil, errors.New("tool name must not be empty")
	}
	o, err := applyToolOptions(opts)
	if err != nil {
		return nil, err
	}
	schema, err := declaredParameters(name, schemaMap, o.strict)
	if err != nil {
		return nil, err
	}
	return &declaration{name: name, description: description, schema: schema, opts: o}, nil
}

func (d *declaration) Name() string        { return d.name }
func (d *declaration) Description() string { return d.description }

// Parameters returns a shallow copy of the JSON Schema (top-level keys only).
// Nested maps (e.g. under "properties") are shared; callers must not mutate them.
func (d *declaration) Parameters() map[string]any { return maps.Clone(d.schema) }

func (d *declaration) Timeout() time.Duration { return d.opts.timeout }
func (d *declaration) Tags() []string         { return append([]string(nil), d.opts.tags...) }

func (t *tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.invoke(ctx, args)
}

// validateArgs runs Validate when T, or *T, implements Validatable.
func validateArgs[T any](typed *T) error {
	v, ok := any(*typed).(Validatable)
	if !ok {
		v, ok = any(typed).(Validatable)
	}
	if !ok {
		return nil
	}
	if err := v.Validate(); err != nil {
		return &ClientError{Reason: err.Error(), Err: err}
	}
	return nil
}

// decodeArgs converts the model's argument map into T.
func decodeArgs[T any](args map[string]any) (T, error) {
	var out T
	if args == nil {
		args = map[string]any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return out, &ClientError{Reason: "json encode error: " + err.Error()}
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, &ClientError{Reason: "json parse error: " + err.Error()}
	}
	return out, nil
}

var (
	_ Invoker      = (*tool)(nil)
	_ ToolMetadata = (*tool)(nil)
	_ Tool         = (*declaration)(nil)
	_ ToolMetadata = (*declaration)(nil)
)
