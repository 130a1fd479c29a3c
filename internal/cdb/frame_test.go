package cdb

import (
	"bytes"
	"testing"
)

func frameSum(frame []byte) byte {
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return sum
}

func TestChecksum_KnownValues(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{"empty", nil, 0xFF},
		{"single zero", []byte{0x00}, 0xFF},
		{"single byte", []byte{0x01}, 0xFE},
		{"wraps mod 256", []byte{0x80, 0x80, 0x01}, 0xFE},
		{"all ones", []byte{0xFF, 0xFF}, 0x01},
	}

	for _, tc := range tests {
		if got := Checksum(tc.data); got != tc.expected {
			t.Errorf("Checksum(%v) = 0x%02X, want 0x%02X", tc.data, got, tc.expected)
		}
	}
}

func TestEncode_StampedFrameSumsToOnesComplementZero(t *testing.T) {
	start, err := StartDownload(4096, []byte{1, 2, 3, 4, 5, 6, 7, 8})
	if err != nil {
		t.Fatalf("StartDownload: %v", err)
	}
	lpl, err := WriteLPL(0x01000, bytes.Repeat([]byte{0xA5}, 100))
	if err != nil {
		t.Fatalf("WriteLPL: %v", err)
	}

	commands := []*Command{
		QueryStatus(),
		EnterPassword(DefaultPassword),
		ModuleFeatures(),
		FirmwareFeatures(),
		FirmwareInfo(),
		start,
		AbortDownload(),
		lpl,
		CompleteEPL(0x2000, 2048),
		CompleteDownload(),
		RunImage(RunHitlessInactive, 2),
		CommitImage(),
	}

	for _, cmd := range commands {
		frame := cmd.Encode()
		if sum := frameSum(frame); sum != 0xFF {
			t.Errorf("command 0x%04X: frame sums to 0x%02X, want 0xFF", cmd.Opcode, sum)
		}
	}
}

func TestQueryStatus_Encoding(t *testing.T) {
	frame := QueryStatus().Encode()
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x02, 0xED, 0x00, 0x00, 0x00, 0x10}
	if !bytes.Equal(frame, want) {
		t.Errorf("QueryStatus frame = % X, want % X", frame, want)
	}
}

func TestEnterPassword_Encoding(t *testing.T) {
	frame := EnterPassword(DefaultPassword).Encode()
	want := []byte{0x00, 0x01, 0x00, 0x00, 0x04, 0xD9, 0x00, 0x00, 0x00, 0x00, 0x10, 0x11}
	if !bytes.Equal(frame, want) {
		t.Errorf("EnterPassword frame = % X, want % X", frame, want)
	}
}

func TestRunImage_Encoding(t *testing.T) {
	frame := RunImage(RunHitlessInactive, 2).Encode()
	want := []byte{0x01, 0x09, 0x00, 0x00, 0x04, 0xEE, 0x00, 0x00, 0x00, 0x01, 0x02, 0x00}
	if !bytes.Equal(frame, want) {
		t.Errorf("RunImage frame = % X, want % X", frame, want)
	}
}

func TestStartDownload_DeclaredLPLSize(t *testing.T) {
	header := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	cmd, err := StartDownload(4096, header)
	if err != nil {
		t.Fatalf("StartDownload: %v", err)
	}

	// 8-byte vendor header plus the 8-byte sub-header.
	if cmd.LPLLength != 16 {
		t.Errorf("LPL length = %d, want 16", cmd.LPLLength)
	}

	frame := cmd.Encode()
	if got := uint32(frame[8])<<24 | uint32(frame[9])<<16 | uint32(frame[10])<<8 | uint32(frame[11]); got != 4096 {
		t.Errorf("declared image size = %d, want 4096", got)
	}
	if !bytes.Equal(frame[16:], header) {
		t.Errorf("vendor header = % X, want % X", frame[16:], header)
	}
}

func TestStartDownload_HeaderTooLarge(t *testing.T) {
	_, err := StartDownload(1, make([]byte, MaxLPLField-8+1))
	if err == nil {
		t.Fatal("StartDownload accepted an oversized vendor header")
	}
}

func TestWriteLPL_Layout(t *testing.T) {
	data := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	cmd, err := WriteLPL(0x00010203, data)
	if err != nil {
		t.Fatalf("WriteLPL: %v", err)
	}

	if cmd.LPLLength != 8 {
		t.Errorf("LPL length = %d, want 8 (4 data + 4 address)", cmd.LPLLength)
	}

	frame := cmd.Encode()
	if len(frame) != HeaderLength+4+MaxLPLData {
		t.Errorf("frame length = %d, want %d", len(frame), HeaderLength+4+MaxLPLData)
	}
	if !bytes.Equal(frame[8:12], []byte{0x00, 0x01, 0x02, 0x03}) {
		t.Errorf("address bytes = % X", frame[8:12])
	}
	if !bytes.Equal(frame[12:16], data) {
		t.Errorf("data bytes = % X, want % X", frame[12:16], data)
	}
	for i, b := range frame[16:] {
		if b != 0 {
			t.Fatalf("padding byte %d = 0x%02X, want 0x00", i, b)
		}
	}
}

func TestWriteLPL_RejectsOversizedPayload(t *testing.T) {
	_, err := WriteLPL(0, make([]byte, MaxLPLData+1))
	if err == nil {
		t.Fatal("WriteLPL accepted an oversized inline payload")
	}
}

func TestCompleteEPL_Encoding(t *testing.T) {
	frame := CompleteEPL(0x00001000, 2048).Encode()
	want := []byte{0x01, 0x04, 0x08, 0x00, 0x04, 0xDE, 0x00, 0x00, 0x00, 0x00, 0x10, 0x00}
	if !bytes.Equal(frame, want) {
		t.Errorf("CompleteEPL frame = % X, want % X", frame, want)
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	header := []byte{9, 8, 7, 6, 5, 4, 3, 2}
	orig, err := StartDownload(123456, header)
	if err != nil {
		t.Fatalf("StartDownload: %v", err)
	}

	decoded, err := Decode(orig.Encode())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Opcode != orig.Opcode {
		t.Errorf("opcode = 0x%04X, want 0x%04X", decoded.Opcode, orig.Opcode)
	}
	if decoded.EPLLength != orig.EPLLength {
		t.Errorf("EPL length = %d, want %d", decoded.EPLLength, orig.EPLLength)
	}
	if decoded.LPLLength != orig.LPLLength {
		t.Errorf("LPL length = %d, want %d", decoded.LPLLength, orig.LPLLength)
	}
	if !bytes.Equal(decoded.Payload, orig.Payload) {
		t.Errorf("payload = % X, want % X", decoded.Payload, orig.Payload)
	}
}

func TestDecode_RejectsCorruptedFrame(t *testing.T) {
	frame := QueryStatus().Encode()
	frame[9] ^= 0xFF

	_, err := Decode(frame)
	if err == nil {
		t.Fatal("Decode accepted a corrupted frame")
	}
	if _, ok := err.(*ChecksumError); !ok {
		t.Errorf("Decode error = %T, want *ChecksumError", err)
	}
}

func TestReply_Validate(t *testing.T) {
	payload := []byte{0x01, 0x02, 0x03}
	good := &Reply{Length: 3, CheckCode: Checksum(payload), Payload: payload}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate of a good reply: %v", err)
	}

	bad := &Reply{Length: 3, CheckCode: Checksum(payload) + 1, Payload: payload}
	err := bad.Validate()
	if err == nil {
		t.Fatal("Validate accepted a corrupted reply")
	}
	if _, ok := err.(*ChecksumError); !ok {
		t.Errorf("Validate error = %T, want *ChecksumError", err)
	}
}

func TestParams_Addresses(t *testing.T) {
	p := DefaultParams()
	if got := p.TriggerAddr(); got != 0x9F*128+128 {
		t.Errorf("TriggerAddr = %d, want %d", got, 0x9F*128+128)
	}
	if got := p.BodyAddr(); got != 0x9F*128+130 {
		t.Errorf("BodyAddr = %d, want %d", got, 0x9F*128+130)
	}
	if got := p.ReplyAddr(); got != 0x9F*128+136 {
		t.Errorf("ReplyAddr = %d, want %d", got, 0x9F*128+136)
	}
	if got := p.EPLAddr(0); got != 0xA0*128+128 {
		t.Errorf("EPLAddr(0) = %d, want %d", got, 0xA0*128+128)
	}
	if got := p.EPLAddr(15); got != 0xAF*128+128 {
		t.Errorf("EPLAddr(15) = %d, want %d", got, 0xAF*128+128)
	}
}
