package covariance

import "fmt"

// InsufficientDataError is returned when a return matrix has fewer
// observations than an estimator requires.
type InsufficientDataError struct {
	Required int
	Actual   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: need at least %d observations, got %d", e.Required, e.Actual)
}

// DegenerateInputError is returned when one or more return columns carry no
// information (zero variance) and the estimator is not configured to keep
// them.
type DegenerateInputError struct {
	Columns []int
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input: zero-variance columns %v", e.Columns)
}

// InvalidConfigError is returned when an estimator configuration fails
// validation.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}
