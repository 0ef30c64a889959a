package skillgap

import (
	"errors"
	"fmt"
)

// ErrPersistenceWrite marks a failed skill create or update.
var ErrPersistenceWrite = errors.New("skill persistence write failed")

// PersistenceError reports one skill whose write failed during a batch.
type PersistenceError struct {
	SkillName string
	Op        string // "update" or "create"
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s skill %q: %v", e.Op, e.SkillName, e.Err)
}

// Unwrap exposes both the sentinel and the store error.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistenceWrite, e.Err}
}
