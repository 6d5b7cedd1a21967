package toolloop

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"go.opentelemetry.io/otel/trace"
)

// Defaults for loop options.
const (
	DefaultMaxIterations        = 40
	DefaultMaxConsecutiveErrors = 3
)

// toolOptions hold optional tool settings.
type toolOptions struct {
	strict      bool
	timeout     time.Duration
	tags        []string
	typeSchemas map[reflect.Type]*jsonschema.Schema
	err         error
}

func applyToolOptions(opts []ToolOption) (toolOptions, error) {
	var o toolOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o, o.err
}

// ToolOption configures a tool (e.g. WithStrict, WithTimeout).
type ToolOption func(*toolOptions)

// WithStrict sets strict mode for schema: additionalProperties: false for all objects,
// and all properties become required. Use for OpenAI Structured Outputs compatibility.
func WithStrict() ToolOption {
	return func(o *toolOptions) {
		o.strict = true
	}
}

// WithTimeout sets a per-tool timeout. The executor applies it around every invocation of the tool.
func WithTimeout(d time.Duration) ToolOption {
	return func(o *toolOptions) {
		o.timeout = d
	}
}

// WithTags sets tool tags (metadata for discovery).
func WithTags(tags ...string) ToolOption {
	return func(o *toolOptions) {
		o.tags = tags
	}
}

// WithTypeSchema makes generated parameter schemas describe values of example's type as jsonType
// with an optional format, e.g. WithTypeSchema(uuid.UUID{}, "string", "uuid"). Pointer fields of the
// type use the same mapping. It has no effect on tools built from a schema map.
func WithTypeSchema(example any, jsonType, format string) ToolOption {
	return func(o *toolOptions) {
		if example == nil || jsonType == "" {
			o.err = errors.Join(o.err, errors.New("type schema needs a non-nil example and a JSON type"))
			return
		}
		if o.typeSchemas == nil {
			o.typeSchemas = make(map[reflect.Type]*jsonschema.Schema)
		}
		o.typeSchemas[reflect.TypeOf(example)] = &jsonschema.Schema{Type: jsonType, Format: format}
	}
}

// InvokeFunc executes one invocation. The default calls inv.Tool.Invoke(ctx, inv.Args).
type InvokeFunc func(ctx context.Context, inv *Invocation) (any, error)

// ResultTransform maps a completed outcome to the output reported to the model.
type ResultTransform func(Outcome) any

// Option configures a Loop.
type Option func(*loopOptions)

type loopOptions struct {
	maxIterations        int
	maxConsecutiveErrors int
	concurrent           bool
	detailedErrors       bool
	terminateOnUnknown   bool
	additional           []Tool
	sources              []ToolSource
	invoke               InvokeFunc
	transform            ResultTransform
	logger               *slog.Logger
	tracerProvider       trace.TracerProvider
}

func defaultLoopOptions() loopOptions {
	return loopOptions{
		maxIterations:        DefaultMaxIterations,
		maxConsecutiveErrors: DefaultMaxConsecutiveErrors,
	}
}

// validate rejects values that cannot drive a loop.
func (o *loopOptions) validate() error {
	if o.maxIterations < 1 {
		return misconfigured("max iterations must be at least 1, got %d", o.maxIterations)
	}
	if o.maxConsecutiveErrors < 0 {
		return misconfigured("max consecutive errors must not be negative, got %d", o.maxConsecutiveErrors)
	}
	for i, src := range o.sources {
		if src == nil {
			return misconfigured("tool source %d is nil", i)
		}
	}
	return nil
}

// WithMaxIterations limits the number of rounds in which calls are invoked per request (default 40).
// Once reached, further calls are left unanswered while the stream is still drained.
func WithMaxIterations(n int) Option {
	return func(o *loopOptions) {
		o.maxIterations = n
	}
}

// WithMaxConsecutiveErrors sets how many consecutive rounds with at least one failed call are
// tolerated (default 3). The next failing round ends the stream with its first error.
// Zero fails on the first failing round.
func WithMaxConsecutiveErrors(n int) Option {
	return func(o *loopOptions) {
		o.maxConsecutiveErrors = n
	}
}

// WithConcurrentInvocation lets the calls of one round run in parallel.
func WithConcurrentInvocation(enable bool) Option {
	return func(o *loopOptions) {
		o.concurrent = enable
	}
}

// WithDetailedErrors reports the error text of failed calls to the model instead of a generic message.
func WithDetailedErrors(enable bool) Option {
	return func(o *loopOptions) {
		o.detailedErrors = enable
	}
}

// WithTerminateOnUnknownCalls ends the loop when the model calls a tool that cannot be resolved,
// leaving the call to the caller, instead of reporting it as not found.
func WithTerminateOnUnknownCalls(enable bool) Option {
	return func(o *loopOptions) {
		o.terminateOnUnknown = enable
	}
}

// WithAdditionalTools adds tools consulted when a name is not declared by the request.
func WithAdditionalTools(tools ...Tool) Option {
	return func(o *loopOptions) {
		o.additional = append(o.additional, tools...)
	}
}

// WithToolSource adds a supplementary source re-read every round (e.g. a *Registry).
func WithToolSource(src ToolSource) Option {
	return func(o *loopOptions) {
		o.sources = append(o.sources, src)
	}
}

// WithInvokeFunc overrides how a single call is executed.
func WithInvokeFunc(fn InvokeFunc) Option {
	return func(o *loopOptions) {
		o.invoke = fn
	}
}

// WithResultTransform maps completed results before they are sent to the model.
func WithResultTransform(fn ResultTransform) Option {
	return func(o *loopOptions) {
		o.transform = fn
	}
}

// WithLogger sets the loop logger (default slog.Default()).
func WithLogger(logger *slog.Logger) Option {
	return func(o *loopOptions) {
		o.logger = logger
	}
}

// WithTracerProvider sets the tracer provider. Without it the loop looks for a
// trace.TracerProvider among the session services, then falls back to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *loopOptions) {
		o.tracerProvider = tp
	}
}
