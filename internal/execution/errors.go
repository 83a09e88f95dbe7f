package execution

import "fmt"

// Error reports a strategy-evaluation failure, such as a malformed rule
// expression or an unresolved condition operand.
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Message) }

func newError(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Message: fmt.Sprintf(format, args...)}
}
