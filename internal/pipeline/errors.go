package pipeline

import "fmt"

// QueryInvalidError reports a pipeline the backing store rejected as
// structurally or semantically invalid (unknown operator, type mismatch,
// disallowed stage). The message carries the full attempted stage sequence
// and the store's native error text for diagnosis. Not retried.
type QueryInvalidError struct {
	Pipeline string // Rendered stage sequence that was attempted.
	Native   string // Backing store's own error text.
}

func (e *QueryInvalidError) Error() string {
	return fmt.Sprintf(
		"query invalid: the pipeline may reference non-existent fields or use invalid operators; pipeline attempted: %s; store error: %s",
		e.Pipeline, e.Native,
	)
}

// QueryExecutionError reports any other execution-time failure: timeout,
// connectivity loss, unexpected result shape. Not retried by this layer.
type QueryExecutionError struct {
	Err error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}
