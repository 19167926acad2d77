package producer

import "fmt"

// ConnectivityError means the backend is unreachable, typically a local
// inference server that is not running.
type ConnectivityError struct {
	Producer string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("%s: cannot connect: %v", e.Producer, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// TimeoutError means the backend exceeded its allotted time.
type TimeoutError struct {
	Producer string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out: %v", e.Producer, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ProducerError means the backend ran but failed internally, e.g. missing
// model weights or a non-zero exit from a model script.
type ProducerError struct {
	Producer string
	Err      error
}

func (e *ProducerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Producer, e.Err)
}

func (e *ProducerError) Unwrap() error { return e.Err }

// ProcessingError means a media tool invocation failed. Stderr carries the
// tail of the tool's diagnostic output.
type ProcessingError struct {
	Tool   string
	Stderr string
	Err    error
}

func (e *ProcessingError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Tool, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Tool, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// ParseError records a model response that could not be parsed. It is always
// recovered locally with a default record and never aborts a run; it exists so
// the diagnostic can carry a sample of the offending text.
type ParseError struct {
	Source string
	Sample string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: unparseable response: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
