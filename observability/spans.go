package observability

import "context"

// StartTurnSpan opens the per-turn span wrapping one coordinator
// observe/act cycle, tagged with the agent and request identifiers so a
// trace backend can correlate turns across agents.
func StartTurnSpan(ctx context.Context, t Telemetry, agentID, requestID string) (context.Context, Span) {
	return t.StartSpan(ctx, "coordinator.turn",
		Attr{Key: "agent_id", Value: agentID},
		Attr{Key: "request_id", Value: requestID},
	)
}

// StartToolSpan opens a span around a single tool invocation within a turn.
func StartToolSpan(ctx context.Context, t Telemetry, agentID, toolID string) (context.Context, Span) {
	return t.StartSpan(ctx, "coordinator.tool_call",
		Attr{Key: "agent_id", Value: agentID},
		Attr{Key: "tool_id", Value: toolID},
	)
}

// StartSQLTransactionSpan opens a span named "memory.sqlbackend.transaction"
// around one SQL backend transaction, recording the operation it performs
// (e.g. "transaction") as its "operation" attribute.
func StartSQLTransactionSpan(ctx context.Context, t Telemetry, operation string) (context.Context, Span) {
	return t.StartSpan(ctx, "memory.sqlbackend.transaction",
		Attr{Key: "operation", Value: operation},
	)
}
