package builtin

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/memory/inprocess"
	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/validation"
)

type processingMode int

const (
	modeSimple processingMode = iota
	modeAnalytical
	modeCreative
)

func parseProcessingMode(s string) (processingMode, error) {
	switch s {
	case "", "simple":
		return modeSimple, nil
	case "analytical":
		return modeAnalytical, nil
	case "creative":
		return modeCreative, nil
	default:
		return 0, fmt.Errorf("invalid mode %q: valid modes are simple, analytical, creative", s)
	}
}

// advancedAgent varies its response shape by processing_mode and, in
// analytical/creative mode, dispatches mock analysis tools before replying.
type advancedAgent struct {
	mem       *inprocess.Backend
	mode      processingMode
	useTools  bool
	context   string
}

func newAdvancedAgent(mode processingMode, useTools bool) *advancedAgent {
	return &advancedAgent{mem: inprocess.New(), mode: mode, useTools: useTools}
}

func (a *advancedAgent) Observe(ctx context.Context, input validation.ValidatedInput) error {
	a.context = input.String()
	return a.mem.Store(ctx, memory.Update{Key: keyContext, Value: a.context})
}

func (a *advancedAgent) Act(context.Context) (string, error) {
	switch a.mode {
	case modeAnalytical:
		words := len(strings.Fields(a.context))
		upper := 0
		for _, r := range a.context {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		return fmt.Sprintf("Analysis: Based on the input '%s', I observe %d patterns and %d key themes.", a.context, words, upper), nil
	case modeCreative:
		return fmt.Sprintf("Creative response: '%s' reminds me of a story where challenges become opportunities for growth.", a.context), nil
	default:
		return "Processed: " + a.context, nil
	}
}

func (a *advancedAgent) CallTools(context.Context) ([]registry.ToolCall, error) {
	if !a.useTools || a.context == "" {
		return nil, nil
	}
	switch a.mode {
	case modeAnalytical:
		return []registry.ToolCall{toolCall("analyze_text", a.context), toolCall("count_words", a.context)}, nil
	case modeCreative:
		return []registry.ToolCall{toolCall("generate_ideas", a.context)}, nil
	default:
		return nil, nil
	}
}

func (a *advancedAgent) HandleResult(ctx context.Context, result registry.ExecutionResult) error {
	if !result.IsSuccess() {
		return nil
	}
	a.context += fmt.Sprintf(" [Tool result: %s]", result.Output())
	return a.mem.Store(ctx, memory.Update{Key: keyEnrichedContext, Value: a.context})
}

func (a *advancedAgent) MemoryReader() memory.Reader { return a.mem }
func (a *advancedAgent) MemoryWriter() memory.Writer { return a.mem }
