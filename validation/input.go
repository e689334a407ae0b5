package validation

import "fmt"

// MaxInputSize is the hard cap on ValidatedInput payload size (1 MiB).
const MaxInputSize = 1 << 20

// binaryHeuristicThreshold is the fraction of control bytes (excluding
// \t\n\r) above which a payload is rejected as likely-binary content rather
// than text input.
const binaryHeuristicThreshold = 0.30

// ValidatedInput is bounded-length, text-heuristic-checked user input. It is
// the only shape a ToolCall or an observation payload may carry.
type ValidatedInput struct{ value string }

// NewValidatedInput enforces the size cap and the binary-content heuristic.
func NewValidatedInput(raw string) (ValidatedInput, error) {
	if len(raw) == 0 {
		return ValidatedInput{}, newValidationError("input", "must not be empty")
	}
	if len(raw) > MaxInputSize {
		return ValidatedInput{}, newValidationError("input", fmt.Sprintf("must be at most %d bytes", MaxInputSize))
	}
	if looksBinary(raw) {
		return ValidatedInput{}, newValidationError("input", "payload appears to be binary content")
	}
	return ValidatedInput{value: raw}, nil
}

func looksBinary(s string) bool {
	if len(s) == 0 {
		return false
	}
	control := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if c < 0x20 || c == 0x7f {
			control++
		}
	}
	return float64(control)/float64(len(s)) > binaryHeuristicThreshold
}

func (v ValidatedInput) String() string { return v.value }

// Len reports the byte length of the validated payload.
func (v ValidatedInput) Len() int { return len(v.value) }
