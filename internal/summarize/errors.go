package summarize

import "fmt"

// ValidationError reports bad input rejected before any external call.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Msg
}

// AnalysisError reports a failed generation. Nothing is persisted when one
// is returned; a later retry re-attempts generation from scratch.
type AnalysisError struct {
	Kind string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis %s: %v", e.Kind, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}
