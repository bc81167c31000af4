package dispatcher

import (
	"errors"
	"fmt"
)

// ErrFanOut matches every *FanOutError with errors.Is
var ErrFanOut = errors.New("fan-out failed")

// FanOutError reports a fan-out in which at least one operation
// failed. Under the fail-fast policy Err is the first failure
// observed. Under wait-for-all it combines every failure.
type FanOutError struct {
	// N is the number of operations requested
	N int
	// Succeeded is the number of operations observed to
	// succeed before the dispatcher stopped waiting
	Succeeded int
	// Failed is the number of failures observed
	Failed int
	Err    error
}

func (err *FanOutError) Error() string {
	return fmt.Sprintf("fan-out of %d failed (%d succeeded, %d failed): %s", err.N, err.Succeeded, err.Failed, err.Err)
}

// Unwrap returns the underlying failure
func (err *FanOutError) Unwrap() error {
	return err.Err
}

// Is reports whether target is ErrFanOut
func (err *FanOutError) Is(target error) bool {
	return target == ErrFanOut
}
