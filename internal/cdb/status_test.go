package cdb

import "testing"

func TestStatus_CoarseStates(t *testing.T) {
	tests := []struct {
		status Status
		busy   bool
		failed bool
		ok     bool
	}{
		{0x81, true, false, false},  // in progress, command captured
		{0x82, true, false, false},  // in progress, checking
		{0xC1, true, false, false},  // busy wins over the failed bit
		{0x01, false, false, true},  // success
		{0x41, false, true, false},  // failed, unknown command
		{0x47, false, true, false},  // failed, incompatible state
	}

	for _, tc := range tests {
		if got := tc.status.Busy(); got != tc.busy {
			t.Errorf("Status(0x%02X).Busy() = %t, want %t", byte(tc.status), got, tc.busy)
		}
		if got := tc.status.Failed(); got != tc.failed {
			t.Errorf("Status(0x%02X).Failed() = %t, want %t", byte(tc.status), got, tc.failed)
		}
		if got := tc.status.Ok(); got != tc.ok {
			t.Errorf("Status(0x%02X).Ok() = %t, want %t", byte(tc.status), got, tc.ok)
		}
	}
}

func TestStatus_Result(t *testing.T) {
	if got := Status(0x45).Result(); got != FailCheckCode {
		t.Errorf("Status(0x45).Result() = 0x%02X, want FailCheckCode", byte(got))
	}
	if got := Status(0x81).Result(); got != 0x01 {
		t.Errorf("Status(0x81).Result() = 0x%02X, want 0x01", byte(got))
	}
}

func TestResult_Transient(t *testing.T) {
	transient := []Result{FailCheckingTimeout, FailCheckCode}
	for _, r := range transient {
		if !r.Transient() {
			t.Errorf("Result(0x%02X).Transient() = false, want true", byte(r))
		}
	}

	structural := []Result{
		FailUnknownCommand,
		FailParameterRange,
		FailNotAborted,
		FailPassword,
		FailIncompatibleState,
		0x20, // command-specific
		0x30, // custom
	}
	for _, r := range structural {
		if r.Transient() {
			t.Errorf("Result(0x%02X).Transient() = true, want false", byte(r))
		}
	}
}

func TestResult_FailureReason(t *testing.T) {
	tests := []struct {
		code     Result
		expected string
	}{
		{FailUnknownCommand, "command code unknown"},
		{FailParameterRange, "parameter range error"},
		{FailCheckingTimeout, "command checking timed out"},
		{FailCheckCode, "check code error"},
		{FailPassword, "password error"},
		{FailIncompatibleState, "command not compatible with operating status"},
	}

	for _, tc := range tests {
		if got := tc.code.FailureReason(); got != tc.expected {
			t.Errorf("FailureReason(0x%02X) = %q, want %q", byte(tc.code), got, tc.expected)
		}
	}
}

func TestFaultFlags(t *testing.T) {
	tests := []struct {
		flags    FaultFlags
		datapath bool
		module   bool
		faulted  bool
	}{
		{0x00, false, false, false},
		{0x04, true, false, true},
		{0x02, false, true, true},
		{0x06, true, true, true},
		{0x41, false, false, false}, // command complete + state changed only
	}

	for _, tc := range tests {
		if got := tc.flags.DatapathFault(); got != tc.datapath {
			t.Errorf("FaultFlags(0x%02X).DatapathFault() = %t, want %t", byte(tc.flags), got, tc.datapath)
		}
		if got := tc.flags.ModuleFault(); got != tc.module {
			t.Errorf("FaultFlags(0x%02X).ModuleFault() = %t, want %t", byte(tc.flags), got, tc.module)
		}
		if got := tc.flags.Faulted(); got != tc.faulted {
			t.Errorf("FaultFlags(0x%02X).Faulted() = %t, want %t", byte(tc.flags), got, tc.faulted)
		}
	}
}
