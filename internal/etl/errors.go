package etl

import (
	"errors"
	"fmt"
)

// ValidationError reports invalid input that the caller supplied, such as an
// inverted date range. Row-level validation failures are represented as
// Rejection entries instead, because they never abort a batch.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "etl: " + e.Reason
}

// ErrRejectRatioExceeded aborts a load whose rejection ratio crossed the
// configured threshold. Surfaced as a pipeline-level failure.
var ErrRejectRatioExceeded = errors.New("etl: reject ratio exceeded")

// ReferentialError reports a fact row whose dimension keys could not be
// resolved. With the dimension pass completing before the fact pass this
// should not occur; when it does, the row is skipped and counted.
type ReferentialError struct {
	Line      int
	Dimension string
	Key       string
}

func (e *ReferentialError) Error() string {
	return fmt.Sprintf("etl: line %d: no %s dimension row for %q", e.Line, e.Dimension, e.Key)
}
