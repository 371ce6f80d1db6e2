package inbox

import "errors"

// Domain errors for the inbox package.
var (
	// ErrResultNotFound is returned when no result has the given UID.
	ErrResultNotFound = errors.New("inbox: result not found")

	// ErrUIDRequired is returned when an empty UID is given.
	ErrUIDRequired = errors.New("inbox: uid is required")

	// ErrRecorderClosed is returned when the recorder is used after Stop.
	ErrRecorderClosed = errors.New("inbox: recorder closed")
)
