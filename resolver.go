package toolloop

// ToolKind classifies how a call name resolves within a round.
type ToolKind int

const (
	ToolUnknown ToolKind = iota
	ToolInvocable
	ToolDeclarationOnly
)

func (k ToolKind) String() string {
	switch k {
	case ToolInvocable:
		return "invocable"
	case ToolDeclarationOnly:
		return "declaration-only"
	default:
		return "unknown"
	}
}

// Resolution is the outcome of looking up a call name. Invoker is set only for ToolInvocable.
type Resolution struct {
	Kind    ToolKind
	Tool    Tool
	Invoker Invoker
}

// ToolTable maps tool names to tools for one round. It is built before any invocation starts
// and never mutated afterwards, so concurrent invocations may read it freely.
type ToolTable map[string]Tool

// resolveTools builds the round's table. The request's declared tools are the primary source;
// supplementary tools are only consulted for names the request does not declare. Within a source the
// first tool with a given name wins.
func resolveTools(declared []Tool, supplementary ...[]Tool) ToolTable {
	table := make(ToolTable, len(declared))
	add := func(tools []Tool) {
		for _, t := range tools {
			if t == nil {
				continue
			}
			if _, exists := table[t.Name()]; !exists {
				table[t.Name()] = t
			}
		}
	}
	add(declared)
	for _, tools := range supplementary {
		add(tools)
	}
	return table
}

// Resolve classifies name once: unknown, invocable or declaration-only.
func (t ToolTable) Resolve(name string) Resolution {
	tool, ok := t[name]
	if !ok {
		return Resolution{Kind: ToolUnknown}
	}
	if inv, ok := tool.(Invoker); ok {
		return Resolution{Kind: ToolInvocable, Tool: tool, Invoker: inv}
	}
	return Resolution{Kind: ToolDeclarationOnly, Tool: tool}
}

// terminationReason applies the loop's termination policy to a batch. It returns a non-empty reason
// when the batch must be handed back to the caller without invoking anything.
func (t ToolTable) terminationReason(batch []CallRequest, terminateOnUnknown bool) string {
	if len(t) == 0 {
		if terminateOnUnknown {
			return "no tools available"
		}
		return ""
	}
	for _, call := range batch {
		switch t.Resolve(call.Name).Kind {
		case ToolDeclarationOnly:
			return "declaration-only tool " + call.Name
		case ToolUnknown:
			if terminateOnUnknown {
				return "unknown tool " + call.Name
			}
		}
	}
	return ""
}
