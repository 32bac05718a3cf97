package receipt

import (
	"errors"
	"fmt"
)

// Errors surfaced by the capture/extraction pipeline. All of them return
// the session to idle; none of them are swallowed into a log line.
var (
	// ErrCaptureCanceled is reported when the user backs out of the
	// gallery/camera without producing an image.
	ErrCaptureCanceled = errors.New("capture canceled")

	// ErrPermissionDenied is reported when the camera permission was not
	// granted on the client.
	ErrPermissionDenied = errors.New("camera permission denied")

	// ErrCaptureInProgress rejects a new capture while an earlier one is
	// still being extracted.
	ErrCaptureInProgress = errors.New("a capture is already in progress")

	// ErrCaptureSuperseded marks a completion that arrived after the
	// session moved on; its result is discarded.
	ErrCaptureSuperseded = errors.New("capture superseded by a newer session")

	// ErrEmptyReply is returned when the completion service produced no
	// message content for the first choice.
	ErrEmptyReply = errors.New("completion reply has no content")

	// ErrNothingToSettle is returned when settling without a receipt
	// under review.
	ErrNothingToSettle = errors.New("no receipt under review")
)

// NetworkError wraps a transport failure on one of the remote stages.
// Stage is "ocr" or "completion".
type NetworkError struct {
	Stage string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Stage, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// TimeoutError is returned when a remote stage exceeded its bounded
// deadline.
type TimeoutError struct {
	Stage string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s stage timed out", e.Stage)
}

// MalformedReplyError means the completion reply was not a JSON document
// even though the prompt demanded one.
type MalformedReplyError struct {
	Err error
}

func (e *MalformedReplyError) Error() string {
	return fmt.Sprintf("completion reply is not valid JSON: %v", e.Err)
}

func (e *MalformedReplyError) Unwrap() error { return e.Err }

// SchemaMismatchError means the reply parsed as JSON but did not match the
// expected receipt shape.
type SchemaMismatchError struct {
	Field  string
	Reason string
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("reply field %q: %s", e.Field, e.Reason)
}
