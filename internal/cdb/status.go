package cdb

import "fmt"

// Status is the CDB command status byte.
//
//	Bit 7:   busy
//	Bit 6:   failed
//	Bit 5-0: result code, interpreted against the coarse state
type Status byte

// StatusSuccess is the status byte reported after a command completes
// successfully (busy=0, failed=0, result=1).
const StatusSuccess Status = 0x01

// Busy reports whether the module is still processing a command.
func (s Status) Busy() bool {
	return s&0x80 != 0
}

// Failed reports whether the last command failed.
func (s Status) Failed() bool {
	return !s.Busy() && s&0x40 != 0
}

// Ok reports whether the last command completed successfully.
func (s Status) Ok() bool {
	return !s.Busy() && s&0x40 == 0
}

// Result returns the 6-bit result code.
func (s Status) Result() Result {
	return Result(s & 0x3F)
}

func (s Status) String() string {
	switch {
	case s.Busy():
		return fmt.Sprintf("busy (0x%02X)", byte(s))
	case s.Failed():
		return fmt.Sprintf("failed: %s (0x%02X)", s.Result().FailureReason(), byte(s))
	default:
		return fmt.Sprintf("success (0x%02X)", byte(s))
	}
}

// Result is the 6-bit command result code. Failure codes follow the fixed
// CMIS taxonomy; 20h-2Fh are command-specific, 30h-3Fh vendor custom.
type Result byte

const (
	FailUnknownCommand    Result = 0x01
	FailParameterRange    Result = 0x02
	FailNotAborted        Result = 0x03
	FailCheckingTimeout   Result = 0x04
	FailCheckCode         Result = 0x05
	FailPassword          Result = 0x06
	FailIncompatibleState Result = 0x07
)

// FailureReason returns a human-readable description of a failure code.
func (r Result) FailureReason() string {
	switch r {
	case FailUnknownCommand:
		return "command code unknown"
	case FailParameterRange:
		return "parameter range error"
	case FailNotAborted:
		return "previous command was not aborted"
	case FailCheckingTimeout:
		return "command checking timed out"
	case FailCheckCode:
		return "check code error"
	case FailPassword:
		return "password error"
	case FailIncompatibleState:
		return "command not compatible with operating status"
	default:
		if r >= 0x20 && r <= 0x2F {
			return fmt.Sprintf("command-specific error 0x%02X", byte(r))
		}
		if r >= 0x30 && r <= 0x3F {
			return fmt.Sprintf("custom error 0x%02X", byte(r))
		}
		return fmt.Sprintf("reserved code 0x%02X", byte(r))
	}
}

// Transient reports whether a failure with this result code is worth
// retrying. Structural rejections (unknown command, bad parameter, password,
// incompatible state) will fail again identically and consume no retries.
func (r Result) Transient() bool {
	switch r {
	case FailCheckingTimeout, FailCheckCode:
		return true
	default:
		return false
	}
}

// FaultFlags is the latched module fault byte.
//
//	Bit 6: CDB block 1 command complete
//	Bit 2: datapath firmware fault
//	Bit 1: module firmware fault
//	Bit 0: module state changed
type FaultFlags byte

// DatapathFault reports a latched fault in subordinate datapath firmware
// (e.g. a DSP).
func (f FaultFlags) DatapathFault() bool {
	return f&0x04 != 0
}

// ModuleFault reports a latched fault in the main module firmware.
func (f FaultFlags) ModuleFault() bool {
	return f&0x02 != 0
}

// CommandComplete reports the latched CDB block 1 completion flag.
func (f FaultFlags) CommandComplete() bool {
	return f&0x40 != 0
}

// Faulted reports whether either firmware fault bit is set. A set fault bit
// is a hardware failure and takes precedence over any status interpretation.
func (f FaultFlags) Faulted() bool {
	return f.DatapathFault() || f.ModuleFault()
}

func (f FaultFlags) String() string {
	switch {
	case f.DatapathFault() && f.ModuleFault():
		return "datapath and module firmware fault"
	case f.DatapathFault():
		return "datapath firmware fault"
	case f.ModuleFault():
		return "module firmware fault"
	default:
		return "no fault"
	}
}
