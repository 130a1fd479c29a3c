package updater

import "fmt"

// StateError reports an operation attempted in a state that does not allow it.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s not allowed in state %s", e.Op, e.State)
}

// RetryExhaustedError reports a command that failed on every attempt. Cause
// is the failure observed on the last attempt; the command never defaults to
// success.
type RetryExhaustedError struct {
	Opcode   uint16
	Attempts int
	Cause    error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("command 0x%04X failed after %d attempts: %v",
		e.Opcode, e.Attempts, e.Cause)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Cause
}

// IncompleteDownloadError reports a completion attempt before the whole
// image was transferred.
type IncompleteDownloadError struct {
	Written uint32
	Size    uint32
}

func (e *IncompleteDownloadError) Error() string {
	return fmt.Sprintf("download incomplete: %d of %d bytes written", e.Written, e.Size)
}
