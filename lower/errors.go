package lower

import "fmt"

// InternalError is panicked, never returned, when the engine detects a
// violation of its own invariants (a branch depth outside the block stack,
// an operand-stack underflow, a block entered with fewer operands than its
// parameters, an opcode it has no lowering for). Per §7/§4.C.9, the engine trusts its
// input was already validated; an InternalError means the engine itself — or
// the validator upstream of it — has a bug, not that the module is malformed.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "lower: internal error: " + e.Msg }

func panicInternal(format string, args ...interface{}) {
	panic(&InternalError{Msg: fmt.Sprintf(format, args...)})
}
