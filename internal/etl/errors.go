package etl

import (
	"errors"
	"fmt"
)

// Error kinds. Match with errors.Is.
var (
	// ErrStructural marks a malformed pipeline graph.
	ErrStructural = errors.New("structural error")
	// ErrConfig marks missing or invalid plugin configuration.
	ErrConfig = errors.New("config error")
	// ErrConnection marks I/O or driver failures.
	ErrConnection = errors.New("connection error")
	// ErrData marks a per-record failure.
	ErrData = errors.New("data error")
	// ErrExecution marks a node failure during a run.
	ErrExecution = errors.New("execution error")

	ErrCycle         = errors.New("pipeline contains a cycle")
	ErrUnknownPlugin = errors.New("unknown plugin type")
	ErrUnsupported   = errors.New("unsupported operation")
)

// Error carries an error kind, the operation or component that raised it,
// and an optional underlying cause.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if msg == "" {
		return e.Kind.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// StructuralErrorf reports a graph problem (cycle, unknown plugin, bad edge).
func StructuralErrorf(cause error, format string, args ...any) error {
	return &Error{Kind: ErrStructural, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// ConfigErrorf reports invalid configuration for the named plugin.
func ConfigErrorf(plugin, format string, args ...any) error {
	return &Error{Kind: ErrConfig, Op: plugin, Msg: fmt.Sprintf(format, args...)}
}

// ConnectionError wraps an I/O or driver failure raised during op.
func ConnectionError(op string, err error) error {
	return &Error{Kind: ErrConnection, Op: op, Err: err}
}

// DataError wraps a per-record failure.
func DataError(op string, err error) error {
	return &Error{Kind: ErrData, Op: op, Err: err}
}

// ExecutionError wraps a node failure during a run.
func ExecutionError(nodeID string, err error) error {
	return &Error{Kind: ErrExecution, Op: fmt.Sprintf("node %q", nodeID), Err: err}
}
