// Package mem defines the register/memory surface the CDB layers consume:
// named field reads plus raw paged byte access. How a device implements it
// (I2C, MDIO, a serial bridge, an emulator) is not this package's concern.
package mem

import "fmt"

// Device is the paged register space of one module. Offsets are flat:
// page number * page length + byte offset within the page.
//
// A Device is owned by a single update session at a time.
type Device interface {
	// ReadField reads a named single-byte register field.
	ReadField(f Field) (byte, error)

	// ReadBytes reads n bytes starting at the flat offset.
	ReadBytes(offset uint32, n int) ([]byte, error)

	// WriteBytes writes p starting at the flat offset.
	WriteBytes(offset uint32, p []byte) error
}

// PageLength is the size of one addressable page.
const PageLength = 128

// PageOffset returns the flat address of a byte within a page.
func PageOffset(page int, off int) uint32 {
	return uint32(page*PageLength + off)
}

// Field names a single-byte register field with a fixed location.
type Field uint8

const (
	// FieldModuleState is the coarse module state (lower page 00h byte 3).
	FieldModuleState Field = iota
	// FieldFirmwareFault is the latched module fault byte (00h byte 8).
	FieldFirmwareFault
	// FieldCdbStatus is the CDB block 1 command status (00h byte 37).
	FieldCdbStatus
	// FieldWriteGranularity advertises the preferred EPL write length
	// (page 01h byte 168, lower nibble in units of 8 bytes).
	FieldWriteGranularity
	// FieldReplyLength is the RPL length field (page 9Fh byte 134).
	FieldReplyLength
	// FieldReplyChecksum is the RPL check code field (page 9Fh byte 135).
	FieldReplyChecksum
)

var fieldOffsets = map[Field]uint32{
	FieldModuleState:      PageOffset(0x00, 3),
	FieldFirmwareFault:    PageOffset(0x00, 8),
	FieldCdbStatus:        PageOffset(0x00, 37),
	FieldWriteGranularity: PageOffset(0x01, 168),
	FieldReplyLength:      PageOffset(0x9F, 134),
	FieldReplyChecksum:    PageOffset(0x9F, 135),
}

// FieldOffset returns the flat address of a named field. Implementations
// backed by raw byte access can serve ReadField with a one-byte ReadBytes at
// this offset.
func FieldOffset(f Field) (uint32, error) {
	off, ok := fieldOffsets[f]
	if !ok {
		return 0, fmt.Errorf("unknown field %d", f)
	}
	return off, nil
}

func (f Field) String() string {
	switch f {
	case FieldModuleState:
		return "ModuleState"
	case FieldFirmwareFault:
		return "FirmwareFault"
	case FieldCdbStatus:
		return "CdbStatus"
	case FieldWriteGranularity:
		return "WriteGranularity"
	case FieldReplyLength:
		return "ReplyLength"
	case FieldReplyChecksum:
		return "ReplyChecksum"
	default:
		return fmt.Sprintf("Field(%d)", uint8(f))
	}
}
