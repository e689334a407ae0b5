package builtin

import (
	"fmt"

	"github.com/corebound/agentrt/agent"
	"github.com/corebound/agentrt/coordinator"
	"github.com/corebound/agentrt/registry"
)

// EchoBuilder builds the echo agent type: it replies with its last
// observation, prefixed "Echo: ", and dispatches no tools.
type EchoBuilder struct {
	registry registry.Registry
}

// NewEchoBuilder constructs a builder that dispatches through reg. reg
// should already carry RegisterTools' mock tools, though the echo agent
// type never calls any of them.
func NewEchoBuilder(reg registry.Registry) *EchoBuilder {
	return &EchoBuilder{registry: reg}
}

func (b *EchoBuilder) AgentType() string { return "echo" }

func (b *EchoBuilder) ValidateSpec(spec agent.Spec) error {
	return agent.DefaultValidateSpec(b, spec)
}

func (b *EchoBuilder) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{}
}

func (b *EchoBuilder) BuildCoordinator(spec agent.Spec) (agent.Coordinator, error) {
	if err := b.ValidateSpec(spec); err != nil {
		return nil, err
	}
	return coordinator.New(newEchoAgent(), b.registry), nil
}

// AdvancedBuilder builds the advanced agent type: a configurable
// simple/analytical/creative processing mode that dispatches mock analysis
// tools when use_tools is enabled.
type AdvancedBuilder struct {
	registry registry.Registry
}

func NewAdvancedBuilder(reg registry.Registry) *AdvancedBuilder {
	return &AdvancedBuilder{registry: reg}
}

func (b *AdvancedBuilder) AgentType() string { return "advanced" }

func (b *AdvancedBuilder) ValidateSpec(spec agent.Spec) error {
	if err := agent.DefaultValidateSpec(b, spec); err != nil {
		return err
	}
	if raw, ok := spec.Config["mode"]; ok {
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("mode must be a string")
		}
		if _, err := parseProcessingMode(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *AdvancedBuilder) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{"mode": "simple", "use_tools": true}
}

func (b *AdvancedBuilder) BuildCoordinator(spec agent.Spec) (agent.Coordinator, error) {
	if err := b.ValidateSpec(spec); err != nil {
		return nil, err
	}
	mode := modeSimple
	if raw, ok := spec.Config["mode"]; ok {
		mode, _ = parseProcessingMode(raw.(string))
	}
	useTools := true
	if raw, ok := spec.Config["use_tools"]; ok {
		if v, ok := raw.(bool); ok {
			useTools = v
		}
	}
	return coordinator.New(newAdvancedAgent(mode, useTools), b.registry), nil
}

// AnalyticsBuilder builds the analytics agent type: it accumulates
// observations and reports summary statistics at a configurable depth.
type AnalyticsBuilder struct {
	registry registry.Registry
}

func NewAnalyticsBuilder(reg registry.Registry) *AnalyticsBuilder {
	return &AnalyticsBuilder{registry: reg}
}

func (b *AnalyticsBuilder) AgentType() string { return "analytics" }

func (b *AnalyticsBuilder) ValidateSpec(spec agent.Spec) error {
	if err := agent.DefaultValidateSpec(b, spec); err != nil {
		return err
	}
	if raw, ok := spec.Config["depth"]; ok {
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("depth must be a string")
		}
		if _, err := parseAnalysisDepth(s); err != nil {
			return err
		}
	}
	return nil
}

func (b *AnalyticsBuilder) DefaultConfig() map[string]interface{} {
	return map[string]interface{}{"depth": "basic"}
}

func (b *AnalyticsBuilder) BuildCoordinator(spec agent.Spec) (agent.Coordinator, error) {
	if err := b.ValidateSpec(spec); err != nil {
		return nil, err
	}
	depth := depthBasic
	if raw, ok := spec.Config["depth"]; ok {
		depth, _ = parseAnalysisDepth(raw.(string))
	}
	return coordinator.New(newAnalyticsAgent(depth), b.registry), nil
}
