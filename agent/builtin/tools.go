// Package builtin supplies the runtime's out-of-the-box agent types — echo,
// advanced, and analytics — so a freshly started process has something to
// create immediately rather than requiring an operator to register a
// builder before the HTTP surface is useful. Grounded on
// original_source/crates/skreaver-http/src/runtime/agent_builders.rs
// (EchoAgent/AdvancedAgent/AnalyticsAgent and their MockTool-backed
// registries), restated through coordinator.Agent and registry.Tool.
package builtin

import (
	"context"
	"fmt"

	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/validation"
)

// mockTool mirrors agent_builders.rs's MockTool: it does no real work, only
// echoes its name and input, so the advanced/analytics agent types have
// something to dispatch without pulling in a real analysis dependency.
func mockTool(name string) registry.Tool {
	return registry.ToolFunc{
		ToolName: name,
		Fn: func(_ context.Context, input validation.ValidatedInput) (registry.ExecutionResult, error) {
			return registry.NewSuccessResult(fmt.Sprintf("[%s] processed: %s", name, input.String())), nil
		},
	}
}

// RegisterTools adds every mock tool the built-in agent types dispatch to
// reg. Call once at startup before any built-in agent runs a turn.
func RegisterTools(reg *registry.InMemory) {
	for _, name := range []string{
		"analyze_text",
		"count_words",
		"generate_ideas",
		"statistical_analysis",
		"pattern_detection",
		"trend_analysis",
	} {
		reg.WithTool(mockTool(name))
	}
}

func toolCall(name, input string) registry.ToolCall {
	call, err := registry.ToolCallFromStrings(name, input)
	if err != nil {
		// name is one of the fixed constants above and input is always a
		// previously-validated observation string, so construction cannot
		// fail; a failure here is a programming error, not runtime data.
		panic(err)
	}
	return call
}
