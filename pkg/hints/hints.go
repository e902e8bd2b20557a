// Package hints labels "soft failures" that only signal a skipped step.
//
// During a maintenance batch some conditions (a target disabled in the
// registry, nothing to audit) are not failures that should flip a verdict
// or page an operator; they simply mean a step did not run. Producers
// label such errors as hints and consumers detect them behaviorally,
// without importing sentinel errors across package boundaries.
package hints

import "errors"

type hintErr struct {
	err error
}

func (h *hintErr) Error() string {
	if h == nil || h.err == nil {
		return "unknown hint"
	}
	return h.err.Error()
}
func (h *hintErr) IsHint() bool  { return true }
func (h *hintErr) Unwrap() error { return h.err }

// New creates a hint from a string.
func New(msg string) error {
	return &hintErr{err: errors.New(msg)}
}

// Wrap takes an existing error and "promotes" it to a hint.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return &hintErr{err: err}
}

// IsHint checks if any error in the chain behaves like a hint.
func IsHint(err error) bool {
	var h interface{ IsHint() bool }
	return errors.As(err, &h) && h.IsHint()
}
