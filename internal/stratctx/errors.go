package stratctx

import "fmt"

// Error taxonomizes context-lookup failures: missing timeframe, missing
// indicator alias, missing custom/price series.
type Error struct {
	Op      string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Message) }

func newError(op, format string, args ...interface{}) *Error {
	return &Error{Op: op, Message: fmt.Sprintf(format, args...)}
}
