package cdb

import "fmt"

// ChecksumError reports a frame or reply whose check code does not match its
// contents.
type ChecksumError struct {
	Advertised byte
	Computed   byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("check code mismatch: advertised 0x%02X, computed 0x%02X",
		e.Advertised, e.Computed)
}

// CommandError reports a command the module completed with a failure status.
type CommandError struct {
	Opcode uint16
	Status Status
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command 0x%04X %s", e.Opcode, e.Status)
}

// Transient reports whether retrying the command could succeed.
func (e *CommandError) Transient() bool {
	return e.Status.Result().Transient()
}
