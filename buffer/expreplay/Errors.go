package expreplay

import "errors"

// ExpReplayError implements errors unique to an experience replay
// buffer.
type ExpReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

// ErrInsufficientData is reported when sampling a buffer that does not
// hold any transitions
var ErrInsufficientData = errors.New("insufficient data in buffer")

// ErrDimensionMismatch is reported when a transition's state or action
// size differs from the buffer's
var ErrDimensionMismatch = errors.New("transition dimensions do not " +
	"match buffer")

// IsInsufficientData returns whether or not an error reports that there
// is no data in the buffer to sample from.
func IsInsufficientData(err error) bool {
	return errors.Is(err, ErrInsufficientData)
}

// IsDimensionMismatch returns whether or not an error reports that a
// transition could not be stored because of its dimensions.
func IsDimensionMismatch(err error) bool {
	return errors.Is(err, ErrDimensionMismatch)
}
