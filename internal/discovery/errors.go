package discovery

import "fmt"

// Error wraps a candidate-construction failure, mirroring the
// strategydef/condition/position packages' own Error type.
type Error struct {
	Op  string
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("discovery: %s: %s", e.Op, e.Msg) }

func newError(op, format string, args ...any) *Error {
	return &Error{Op: op, Msg: fmt.Sprintf(format, args...)}
}
