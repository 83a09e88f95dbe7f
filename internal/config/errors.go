package config

import "fmt"

// Error wraps a config-loading or translation failure, matching the plain
// struct-error style every other package in this repo uses instead of
// sentinel errors or panics.
type Error struct {
	Op  string
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("config: %s: %s", e.Op, e.Msg) }

func newError(op, format string, args ...any) *Error {
	return &Error{Op: op, Msg: fmt.Sprintf(format, args...)}
}
