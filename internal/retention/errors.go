package retention

import (
	"errors"
	"fmt"
)

// Predefined retention errors.
var (
	ErrPolicyViolation   = errors.New("retention policy violation")
	ErrProtectedCategory = errors.New("category is legally retained and cannot be purged")
	ErrUnknownCategory   = errors.New("unknown retention category")
	ErrInvalidPeriod     = errors.New("invalid retention period")
)

// PolicyViolationError is returned when an operation is not permitted by
// the user's retention settings.
type PolicyViolationError struct {
	Reason string
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPolicyViolation, e.Reason)
}

// Is matches ErrPolicyViolation.
func (e *PolicyViolationError) Is(target error) bool {
	return target == ErrPolicyViolation
}
