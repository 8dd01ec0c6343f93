package memorymodel

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by InvariantError. Match them with errors.Is.
var (
	ErrMalformedPath     = errors.New("malformed memory path")
	ErrNoTransaction     = errors.New("no open transaction")
	ErrTransactionOpen   = errors.New("transaction already open")
	ErrCallLevelMismatch = errors.New("call level mismatch")
	ErrUnknownDescriptor = errors.New("descriptor not initialized")
	ErrUnknownIndex      = errors.New("memory index not defined")
	ErrDuplicateName     = errors.New("name already defined")
	ErrArrayOwnership    = errors.New("array owned by another index")
)

// InvariantError reports a broken internal invariant of the memory model.
// These are engine bugs, not precision problems: the analysis of the current
// unit must be aborted.
type InvariantError struct {
	Op  string // operation that detected the violation
	Err error  // one of the sentinel errors above
	Msg string
}

func (e *InvariantError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Msg)
}

func (e *InvariantError) Unwrap() error {
	return e.Err
}

// invariant aborts the current operation. The panic is turned back into an
// error by recoverInvariant at the public API boundary.
func invariant(op string, err error, format string, args ...any) {
	panic(&InvariantError{Op: op, Err: err, Msg: fmt.Sprintf(format, args...)})
}

// recoverInvariant converts an InvariantError panic into *err.
// Any other panic is re-raised.
func recoverInvariant(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InvariantError); ok {
		*err = ie
		return
	}
	panic(r)
}
