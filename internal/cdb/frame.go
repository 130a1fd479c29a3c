package cdb

import (
	"encoding/binary"
	"fmt"
)

// Frame layout, relative to the start of the command block:
//
//	0-1: opcode (big-endian)
//	2-3: EPL length (big-endian)
//	4:   LPL length
//	5:   check code
//	6:   RPL length (written by the module)
//	7:   RPL check code (written by the module)
//	8+:  LPL payload
const (
	HeaderLength  = 8
	ChecksumIndex = 5

	// MaxLPLField is the capacity of the LPL payload region.
	MaxLPLField = 120

	// MaxLPLData is the largest inline firmware chunk: the LPL field minus
	// the 4-byte target address.
	MaxLPLData = 116
)

// Command opcodes.
const (
	CmdQueryStatus      uint16 = 0x0000
	CmdEnterPassword    uint16 = 0x0001
	CmdModuleFeatures   uint16 = 0x0040
	CmdFirmwareFeatures uint16 = 0x0041
	CmdFirmwareInfo     uint16 = 0x0100
	CmdStartDownload    uint16 = 0x0101
	CmdAbortDownload    uint16 = 0x0102
	CmdWriteLPL         uint16 = 0x0103
	CmdCompleteEPL      uint16 = 0x0104
	CmdCompleteDownload uint16 = 0x0107
	CmdRunImage         uint16 = 0x0109
	CmdCommitImage      uint16 = 0x010A
)

// DefaultPassword unlocks the privileged command set on most modules.
const DefaultPassword uint32 = 0x00001011

// Checksum returns the CDB check code for the given bytes: the one's
// complement of their 8-bit sum. A frame stamped with its own check code
// sums to 0xFF.
func Checksum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return 0xFF - sum
}

// Command is a CDB command frame before encoding.
//
// LPLLength is the value of the LPL length field, which is not always the
// payload length: inline writes pad the payload to the full field width but
// declare only the meaningful bytes.
type Command struct {
	Opcode    uint16
	EPLLength uint16
	LPLLength byte
	Payload   []byte
}

// Encode serializes the command and stamps the check code.
func (c *Command) Encode() []byte {
	frame := make([]byte, HeaderLength+len(c.Payload))
	binary.BigEndian.PutUint16(frame[0:2], c.Opcode)
	binary.BigEndian.PutUint16(frame[2:4], c.EPLLength)
	frame[4] = c.LPLLength
	copy(frame[HeaderLength:], c.Payload)
	frame[ChecksumIndex] = Checksum(frame)
	return frame
}

// Decode parses an encoded frame back into a Command and verifies the
// checksum invariant.
func Decode(frame []byte) (*Command, error) {
	if len(frame) < HeaderLength {
		return nil, fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	// A stamped frame sums to 0xFF (one's-complement zero).
	var sum byte
	for _, b := range frame {
		sum += b
	}
	if sum != 0xFF {
		expected := 0xFF - (sum - frame[ChecksumIndex])
		return nil, &ChecksumError{Advertised: frame[ChecksumIndex], Computed: expected}
	}

	c := &Command{
		Opcode:    binary.BigEndian.Uint16(frame[0:2]),
		EPLLength: binary.BigEndian.Uint16(frame[2:4]),
		LPLLength: frame[4],
	}
	if len(frame) > HeaderLength {
		c.Payload = append([]byte(nil), frame[HeaderLength:]...)
	}
	return c, nil
}

// QueryStatus builds the module/CDB status query (0000h).
func QueryStatus() *Command {
	return &Command{
		Opcode:    CmdQueryStatus,
		LPLLength: 2,
		Payload:   []byte{0x00, 0x10},
	}
}

// EnterPassword builds the password entry command (0001h).
func EnterPassword(password uint32) *Command {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, password)
	return &Command{
		Opcode:    CmdEnterPassword,
		LPLLength: 4,
		Payload:   payload,
	}
}

// ModuleFeatures builds the module capability query (0040h).
func ModuleFeatures() *Command {
	return &Command{Opcode: CmdModuleFeatures}
}

// FirmwareFeatures builds the firmware-update capability query (0041h).
func FirmwareFeatures() *Command {
	return &Command{Opcode: CmdFirmwareFeatures}
}

// FirmwareInfo builds the firmware version query (0100h).
func FirmwareInfo() *Command {
	return &Command{Opcode: CmdFirmwareInfo}
}

// StartDownload builds the download start command (0101h). The vendor header
// travels inline, so the declared LPL size is the header length plus the
// 8-byte sub-header carrying the image size.
func StartDownload(imageSize uint32, header []byte) (*Command, error) {
	if len(header) > MaxLPLField-8 {
		return nil, fmt.Errorf("vendor header too large for LPL: %d bytes (max %d)",
			len(header), MaxLPLField-8)
	}
	payload := make([]byte, 8, 8+len(header))
	binary.BigEndian.PutUint32(payload[0:4], imageSize)
	payload = append(payload, header...)
	return &Command{
		Opcode:    CmdStartDownload,
		LPLLength: byte(len(header) + 8),
		Payload:   payload,
	}, nil
}

// AbortDownload builds the download abort command (0102h).
func AbortDownload() *Command {
	return &Command{Opcode: CmdAbortDownload}
}

// WriteLPL builds an inline firmware write (0103h) targeting addr. Data is
// padded to the full LPL data width so the whole page is overwritten, but the
// declared LPL size covers only the address and the meaningful bytes.
func WriteLPL(addr uint32, data []byte) (*Command, error) {
	if len(data) > MaxLPLData {
		return nil, fmt.Errorf("inline payload too large: %d bytes (max %d)",
			len(data), MaxLPLData)
	}
	payload := make([]byte, 4+MaxLPLData)
	binary.BigEndian.PutUint32(payload[0:4], addr)
	copy(payload[4:], data)
	return &Command{
		Opcode:    CmdWriteLPL,
		LPLLength: byte(len(data) + 4),
		Payload:   payload,
	}, nil
}

// CompleteEPL builds the EPL-to-flash transfer command (0104h): the module
// copies the staged EPL unit to flash at addr.
func CompleteEPL(addr uint32, eplLen int) *Command {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, addr)
	return &Command{
		Opcode:    CmdCompleteEPL,
		EPLLength: uint16(eplLen),
		LPLLength: 4,
		Payload:   payload,
	}
}

// CompleteDownload builds the download completion command (0107h).
func CompleteDownload() *Command {
	return &Command{Opcode: CmdCompleteDownload}
}

// RunImage builds the image run command (0109h). delayCode encodes the
// post-reset delay granted to the host before it resumes polling.
func RunImage(mode RunMode, delayCode byte) *Command {
	return &Command{
		Opcode:    CmdRunImage,
		LPLLength: 4,
		Payload:   []byte{0x00, byte(mode), delayCode, 0x00},
	}
}

// CommitImage builds the image commit command (010Ah).
func CommitImage() *Command {
	return &Command{Opcode: CmdCommitImage}
}

// RunMode selects how the module resets into an image.
type RunMode byte

const (
	// RunResetInactive is a traffic-affecting reset to the inactive image.
	RunResetInactive RunMode = 0x00
	// RunHitlessInactive attempts a hitless reset to the inactive image.
	RunHitlessInactive RunMode = 0x01
	// RunResetRunning is a traffic-affecting reset to the running image.
	RunResetRunning RunMode = 0x02
	// RunHitlessRunning attempts a hitless reset to the running image.
	RunHitlessRunning RunMode = 0x03
)

func (m RunMode) String() string {
	switch m {
	case RunResetInactive:
		return "reset-to-inactive"
	case RunHitlessInactive:
		return "hitless-to-inactive"
	case RunResetRunning:
		return "reset-to-running"
	case RunHitlessRunning:
		return "hitless-to-running"
	default:
		return fmt.Sprintf("mode-0x%02X", byte(m))
	}
}

// Reply is a decoded CDB reply.
type Reply struct {
	Length    byte
	CheckCode byte
	Payload   []byte
}

// Validate checks the reply payload against the advertised check code.
func (r *Reply) Validate() error {
	if computed := Checksum(r.Payload); computed != r.CheckCode {
		return &ChecksumError{Advertised: r.CheckCode, Computed: computed}
	}
	return nil
}
