package llm

import "fmt"

// ModelCallError wraps a transport, auth or API failure of the model service.
type ModelCallError struct {
	Provider string
	Err      error
}

func (e *ModelCallError) Error() string {
	return fmt.Sprintf("model call (%s): %v", e.Provider, e.Err)
}

func (e *ModelCallError) Unwrap() error { return e.Err }

// ExtractionParseError reports a model response that is not a JSON object.
type ExtractionParseError struct {
	Raw string
	Err error
}

func (e *ExtractionParseError) Error() string {
	return fmt.Sprintf("parse model response: %v", e.Err)
}

func (e *ExtractionParseError) Unwrap() error { return e.Err }
