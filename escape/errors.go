package escape

import (
	goerrors "github.com/go-errors/errors"
)

// FatalError wraps a condition spec §7 classifies as a programming or
// integration bug, not a recoverable condition: unresolved type hash,
// invalid pointsTo nibble code, a drain invariant violation, a painted node
// with more than one incoming field edge, or a non-empty lifetime map at
// entry. It is returned from Run rather than panicking so callers can
// surface ErrorStack() in their own diagnostics.
type FatalError struct {
	*goerrors.Error
}

func newFatal(format string, args ...interface{}) *FatalError {
	return &FatalError{Error: goerrors.Errorf(format, args...)}
}

// wrapFatal annotates an already-constructed error with a stack trace.
func wrapFatal(err error) *FatalError {
	if err == nil {
		return nil
	}
	return &FatalError{Error: goerrors.Wrap(err, 1)}
}

// warn logs a non-fatal condition (spec §7): non-convergence of a function
// (fallback to pessimistic), or a call-site argument that fails to map to
// an existing PTG node (edge dropped).
func (e *Engine) warn(format string, args ...interface{}) {
	if e.logger == nil {
		return
	}
	e.logger.Printf("escape: warning: "+format, args...)
}
