// Package tools provides the tool framework the agent loop executes
// against. Domain tool implementations (file, web search, HR/finance)
// plug in from outside; this package owns registration, risk tiers, and
// the execution contract.
package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Tool is the interface all agent tools implement.
type Tool interface {
	// Name returns the tool identifier used in tool-call markup.
	Name() string
	// Description returns a human-readable description for the model.
	Description() string
	// Parameters returns argument name -> short description, rendered
	// into the prompt schema text.
	Parameters() map[string]string
	// Execute runs the tool. On error, return a user-friendly message.
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// TieredTool is an optional interface for tools that declare a risk tier.
type TieredTool interface {
	Tool
	Tier() int
}

// Risk tier constants.
const (
	TierReadOnly = 0 // Read-only internal tools, always allowed
	TierWrite    = 1 // Controlled write/internal effects
	TierHighRisk = 2 // External or high-impact actions
)

// ToolTier returns the risk tier for a tool, defaulting to read-only
// for unclassified tools.
func ToolTier(t Tool) int {
	if tt, ok := t.(TieredTool); ok {
		return tt.Tier()
	}
	return TierReadOnly
}

// CallContext carries caller identity down into tool execution.
type CallContext struct {
	ActorID        string
	CallChain      []string
	Depth          int
	ConversationID string
}

// Result is the outcome of one tool execution. Unknown tools and tool
// failures are normal results, not errors.
type Result struct {
	Success bool
	Output  string
	Error   string
}

// Executor runs named tools for the agent loop.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]any, tc CallContext) Result
}

// Registry manages tool registration and execution.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool Tool) {
	r.tools[tool.Name()] = tool
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ReadOnly returns a registry view holding only read-only-tier tools.
// Used for the planning phase of plan-gated delegated work.
func (r *Registry) ReadOnly() *Registry {
	sub := NewRegistry()
	for _, tool := range r.tools {
		if ToolTier(tool) == TierReadOnly {
			sub.Register(tool)
		}
	}
	return sub
}

// Execute runs a tool by name. An unknown name yields a failure Result.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any, tc CallContext) Result {
	tool, ok := r.tools[name]
	if !ok {
		return Result{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}
	out, err := tool.Execute(ctx, args)
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	return Result{Success: true, Output: out}
}

// SchemaText renders the tool schema for the prompt. full=true produces
// the complete per-tool documentation used on the first loop iteration;
// otherwise a one-line reminder of available names.
func (r *Registry) SchemaText(full bool) string {
	names := r.Names()
	if len(names) == 0 {
		return ""
	}
	if !full {
		return "Available tools: " + strings.Join(names, ", ") + ". Call them with <tool_call> markup as before."
	}
	var sb strings.Builder
	sb.WriteString("You can call tools by emitting a block of this form:\n")
	sb.WriteString("<tool_call>\n<tool>TOOL_NAME</tool>\n<ARG_NAME>value</ARG_NAME>\n</tool_call>\n\nAvailable tools:\n")
	for _, name := range names {
		tool := r.tools[name]
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, tool.Description()))
		params := tool.Parameters()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("    %s: %s\n", k, params[k]))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// GetString extracts a string argument with a default value.
func GetString(args map[string]any, key string, defaultVal string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

// GetInt extracts an int argument with a default value.
func GetInt(args map[string]any, key string, defaultVal int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return defaultVal
}

// GetBool extracts a bool argument with a default value.
func GetBool(args map[string]any, key string, defaultVal bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}
