package patch

import (
	"errors"
	"fmt"
	"strings"
)

var ErrPathNotAllowed = errors.New("path is not in the allowed fields set")

// ValidateOperations checks that every operation targets an allowed field. An
// empty allowed set permits any field.
func ValidateOperations(ops []Operation, allowed map[string]bool) error {
	for i, op := range ops {
		switch op.Op {
		case OperationAdd, OperationRemove, OperationReplace:
		default:
			return fmt.Errorf("operation %d: unsupported op %q", i, op.Op)
		}
		if !strings.HasPrefix(op.Path, "/") || len(op.Path) < 2 {
			return fmt.Errorf("operation %d: invalid path %q", i, op.Path)
		}
		if len(allowed) == 0 {
			continue
		}
		if !allowed[Field(op.Path)] {
			return fmt.Errorf("operation %d: %w: %q", i, ErrPathNotAllowed, op.Path)
		}
	}
	return nil
}
