package content

import "fmt"

// FetchError reports a single page that could not be rendered or parsed.
type FetchError struct {
	URL   string
	Cause error
}

func (e *FetchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error: %s: %v", e.URL, e.Cause)
	}
	return fmt.Sprintf("fetch error: %s", e.URL)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// GraphWriteError reports a failed node or edge batch.
type GraphWriteError struct {
	Phase string
	Batch int
	Cause error
}

func (e *GraphWriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("graph write error: %s batch %d: %v", e.Phase, e.Batch, e.Cause)
	}
	return fmt.Sprintf("graph write error: %s batch %d", e.Phase, e.Batch)
}

func (e *GraphWriteError) Unwrap() error {
	return e.Cause
}

// IndexWriteError reports a failed upload batch.
type IndexWriteError struct {
	Batch int
	Cause error
}

func (e *IndexWriteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("index write error: batch %d: %v", e.Batch, e.Cause)
	}
	return fmt.Sprintf("index write error: batch %d", e.Batch)
}

func (e *IndexWriteError) Unwrap() error {
	return e.Cause
}

// SchemaError reports a constraint, index or table that could not be created.
type SchemaError struct {
	Target string
	Cause  error
}

func (e *SchemaError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("schema error: %s: %v", e.Target, e.Cause)
	}
	return fmt.Sprintf("schema error: %s", e.Target)
}

func (e *SchemaError) Unwrap() error {
	return e.Cause
}

// FatalInitError reports a collaborator that could not be started or reached.
type FatalInitError struct {
	Component string
	Cause     error
}

func (e *FatalInitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fatal init error: %s: %v", e.Component, e.Cause)
	}
	return fmt.Sprintf("fatal init error: %s", e.Component)
}

func (e *FatalInitError) Unwrap() error {
	return e.Cause
}
