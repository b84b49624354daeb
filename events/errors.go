package events

import "fmt"

// CommError is the single error kind reported for transport-level
// failures while talking to the camera. The original network error is
// available through Unwrap.
type CommError struct {
	Cause error
}

func (e *CommError) Error() string {
	return fmt.Sprintf("camera communication error: %v", e.Cause)
}

func (e *CommError) Unwrap() error {
	return e.Cause
}

// ProtocolError reports an unrecoverable desynchronization of the event
// stream: a malformed chunk-length header or a payload without a Code
// key. The stream cannot be resumed after it.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "event stream protocol error: " + e.Reason
}
