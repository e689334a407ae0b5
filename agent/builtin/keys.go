package builtin

import "github.com/corebound/agentrt/validation"

func mustKey(name string) validation.MemoryKey {
	k, err := validation.NewMemoryKey(name)
	if err != nil {
		panic(err)
	}
	return k
}

var (
	keyLastInput       = mustKey("last_input")
	keyLastToolResult  = mustKey("last_tool_result")
	keyContext         = mustKey("context")
	keyEnrichedContext = mustKey("enriched_context")
	keyLatestData      = mustKey("latest_data")
	keyAnalysisResults = mustKey("analysis_results")
)
