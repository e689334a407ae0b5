package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/corebound/agentrt/memory"
	"github.com/corebound/agentrt/memory/inprocess"
	"github.com/corebound/agentrt/registry"
	"github.com/corebound/agentrt/validation"
)

type analysisDepth int

const (
	depthBasic analysisDepth = iota
	depthDetailed
	depthComprehensive
)

func parseAnalysisDepth(s string) (analysisDepth, error) {
	switch s {
	case "", "basic":
		return depthBasic, nil
	case "detailed":
		return depthDetailed, nil
	case "comprehensive":
		return depthComprehensive, nil
	default:
		return 0, fmt.Errorf("invalid depth %q: valid depths are basic, detailed, comprehensive", s)
	}
}

// analyticsAgent accumulates every observation it receives and reports
// summary statistics over the whole series, with depth controlling how much
// it computes and which mock tools it dispatches.
type analyticsAgent struct {
	mem   *inprocess.Backend
	data  []string
	depth analysisDepth
}

func newAnalyticsAgent(depth analysisDepth) *analyticsAgent {
	return &analyticsAgent{mem: inprocess.New(), depth: depth}
}

func (a *analyticsAgent) Observe(ctx context.Context, input validation.ValidatedInput) error {
	a.data = append(a.data, input.String())
	return a.mem.Store(ctx, memory.Update{Key: keyLatestData, Value: input.String()})
}

func (a *analyticsAgent) Act(context.Context) (string, error) {
	if len(a.data) == 0 {
		return "Analytics: Processed 0 data points. Latest: None", nil
	}
	latest := a.data[len(a.data)-1]

	switch a.depth {
	case depthDetailed:
		total := 0
		for _, s := range a.data {
			total += len(s)
		}
		avg := total / len(a.data)
		return fmt.Sprintf("Detailed Analytics: %d data points, %d total characters, %d average length per point", len(a.data), total, avg), nil
	case depthComprehensive:
		wordCount := 0
		unique := make(map[string]struct{})
		for _, s := range a.data {
			for _, w := range strings.Fields(s) {
				wordCount++
				unique[w] = struct{}{}
			}
		}
		richness := 0.0
		if wordCount > 0 {
			richness = float64(len(unique)) / float64(wordCount)
		}
		return fmt.Sprintf("Comprehensive Analytics: %d data points, %d total words, %d unique words, vocabulary richness: %.2f", len(a.data), wordCount, len(unique), richness), nil
	default:
		return fmt.Sprintf("Analytics: Processed %d data points. Latest: %s", len(a.data), latest), nil
	}
}

func (a *analyticsAgent) CallTools(context.Context) ([]registry.ToolCall, error) {
	if len(a.data) == 0 {
		return nil, nil
	}
	latest := a.data[len(a.data)-1]
	switch a.depth {
	case depthDetailed:
		return []registry.ToolCall{toolCall("statistical_analysis", latest)}, nil
	case depthComprehensive:
		return []registry.ToolCall{
			toolCall("statistical_analysis", latest),
			toolCall("pattern_detection", latest),
			toolCall("trend_analysis", latest),
		}, nil
	default:
		return nil, nil
	}
}

func (a *analyticsAgent) HandleResult(ctx context.Context, result registry.ExecutionResult) error {
	if !result.IsSuccess() {
		return nil
	}
	return a.mem.Store(ctx, memory.Update{Key: keyAnalysisResults, Value: result.Output()})
}

func (a *analyticsAgent) MemoryReader() memory.Reader { return a.mem }
func (a *analyticsAgent) MemoryWriter() memory.Writer { return a.mem }
