// Package emulator provides an in-memory CMIS module implementing the
// register/memory surface. It processes CDB commands when the trigger word
// is written, applying the firmware-update lifecycle semantics, and supports
// scripted busy counts, failures and fault injection for tests and the
// --simulate CLI mode.
package emulator

import (
	"encoding/binary"
	"fmt"

	"github.com/optomod/cdbflash/internal/cdb"
	"github.com/optomod/cdbflash/internal/mem"
)

// Version is a simulated firmware bank version.
type Version struct {
	Major byte
	Minor byte
	Build uint16
}

// Module is a simulated transceiver. It is not safe for concurrent use,
// matching the single-session ownership of a real CDB channel.
type Module struct {
	params cdb.Params

	// memory is the flat paged register space.
	memory map[uint32]byte

	// Capability advertisement.
	Password   uint32
	LPL        bool
	EPL        bool
	HeaderSize byte

	// Firmware banks.
	VersionA Version
	VersionB Version

	// BusyReads makes every command report busy for that many status
	// reads before completing.
	BusyReads int

	unlocked         bool
	downloading      bool
	downloadComplete bool
	imageSize        uint32
	written          uint32
	header           []byte
	flash            []byte

	staged        []byte
	stagedStale   bool
	busyRemaining int

	// failures is a queue of scripted command results.
	failures []cdb.Result

	// Commands counts processed commands.
	Commands int

	runningB   bool
	committedB bool
}

// New returns a simulated module with EPL and LPL support and firmware 1.0.0
// running from bank A.
func New() *Module {
	m := &Module{
		params:     cdb.DefaultParams(),
		memory:     make(map[uint32]byte),
		Password:   cdb.DefaultPassword,
		LPL:        true,
		EPL:        true,
		HeaderSize: 8,
		VersionA:   Version{Major: 1, Minor: 0, Build: 0},
		VersionB:   Version{Major: 0, Minor: 9, Build: 7},
	}
	m.setStatus(cdb.StatusSuccess)
	return m
}

// QueueFailure scripts the next processed command to fail with the given
// result code. Queued failures are consumed in order.
func (m *Module) QueueFailure(r cdb.Result) {
	m.failures = append(m.failures, r)
}

// InjectFault latches firmware fault bits (cdb.FaultFlags layout).
func (m *Module) InjectFault(flags byte) {
	addr, _ := mem.FieldOffset(mem.FieldFirmwareFault)
	m.memory[addr] |= flags
}

// Flash returns the bytes written to the staging flash so far.
func (m *Module) Flash() []byte {
	return m.flash
}

// Written returns the download byte count the module has accounted.
func (m *Module) Written() uint32 {
	return m.written
}

// Unlocked reports whether the password gate is open.
func (m *Module) Unlocked() bool {
	return m.unlocked
}

// ReadField implements mem.Device.
func (m *Module) ReadField(f mem.Field) (byte, error) {
	if f == mem.FieldCdbStatus && m.busyRemaining > 0 {
		m.busyRemaining--
		// busy, command captured but not processed
		return 0x81, nil
	}
	addr, err := mem.FieldOffset(f)
	if err != nil {
		return 0, err
	}
	return m.memory[addr], nil
}

// ReadBytes implements mem.Device.
func (m *Module) ReadBytes(offset uint32, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative read length %d", n)
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = m.memory[offset+uint32(i)]
	}
	return out, nil
}

// WriteBytes implements mem.Device. Writing the 2-byte trigger word arms and
// processes a command; writes within the EPL staging window accumulate in
// write order.
func (m *Module) WriteBytes(offset uint32, p []byte) error {
	for i, b := range p {
		m.memory[offset+uint32(i)] = b
	}
	if m.inEPLWindow(offset) {
		if m.stagedStale {
			m.staged = m.staged[:0]
			m.stagedStale = false
		}
		m.staged = append(m.staged, p...)
	}
	if offset == m.params.TriggerAddr() && len(p) == 2 {
		m.process()
	}
	return nil
}

func (m *Module) inEPLWindow(offset uint32) bool {
	lo := m.params.EPLAddr(0)
	hi := m.params.EPLAddr(m.params.EPLPages)
	return offset >= lo && offset < hi
}

func (m *Module) setStatus(s cdb.Status) {
	addr, _ := mem.FieldOffset(mem.FieldCdbStatus)
	m.memory[addr] = byte(s)
	// latch command complete
	faddr, _ := mem.FieldOffset(mem.FieldFirmwareFault)
	m.memory[faddr] |= 0x40
}

func (m *Module) fail(r cdb.Result) {
	m.setStatus(cdb.Status(0x40 | byte(r)))
}

func (m *Module) setReply(payload []byte) {
	laddr, _ := mem.FieldOffset(mem.FieldReplyLength)
	caddr, _ := mem.FieldOffset(mem.FieldReplyChecksum)
	m.memory[laddr] = byte(len(payload))
	m.memory[caddr] = cdb.Checksum(payload)
	for i, b := range payload {
		m.memory[m.params.ReplyAddr()+uint32(i)] = b
	}
}

// frame reassembles the written command block: header from the trigger and
// body offsets, payload up to the declared LPL length.
func (m *Module) frame() []byte {
	trigger := m.params.TriggerAddr()
	body := m.params.BodyAddr()

	lplLen := m.memory[body+2]
	n := cdb.HeaderLength + int(lplLen)
	out := make([]byte, n)
	out[0] = m.memory[trigger]
	out[1] = m.memory[trigger+1]
	for i := 2; i < n; i++ {
		out[i] = m.memory[body+uint32(i-2)]
	}
	return out
}

func (m *Module) process() {
	m.Commands++
	m.busyRemaining = m.BusyReads

	if len(m.failures) > 0 {
		r := m.failures[0]
		m.failures = m.failures[1:]
		m.fail(r)
		return
	}

	frame := m.frame()
	if !checksumValid(frame) {
		m.fail(cdb.FailCheckCode)
		return
	}

	opcode := binary.BigEndian.Uint16(frame[0:2])
	payload := frame[cdb.HeaderLength:]

	switch opcode {
	case cdb.CmdQueryStatus:
		m.setReply([]byte{0x00, 0x01})
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdEnterPassword:
		if len(payload) < 4 || binary.BigEndian.Uint32(payload[0:4]) != m.Password {
			m.fail(cdb.FailPassword)
			return
		}
		m.unlocked = true
		m.setReply(nil)
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdModuleFeatures:
		m.setReply([]byte{0x00, 0x00, 0x01, 0x00})
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdFirmwareFeatures:
		var caps byte
		if m.LPL {
			caps |= 0x01
		}
		if m.EPL {
			caps |= 0x02
		}
		m.setReply([]byte{0x00, caps, m.HeaderSize, 0x00})
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdFirmwareInfo:
		m.setReply(m.firmwareInfoReply())
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdStartDownload:
		m.startDownload(payload)

	case cdb.CmdAbortDownload:
		m.downloading = false
		m.downloadComplete = false
		m.stagedStale = true
		m.written = 0
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdWriteLPL:
		m.writeLPL(frame, payload)

	case cdb.CmdCompleteEPL:
		m.completeEPL(payload)

	case cdb.CmdCompleteDownload:
		if !m.downloading || m.written != m.imageSize {
			m.fail(cdb.FailIncompatibleState)
			return
		}
		m.downloading = false
		m.downloadComplete = true
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdRunImage:
		if !m.unlocked {
			m.fail(cdb.FailIncompatibleState)
			return
		}
		m.runningB = !m.runningB
		m.setStatus(cdb.StatusSuccess)

	case cdb.CmdCommitImage:
		if !m.unlocked {
			m.fail(cdb.FailIncompatibleState)
			return
		}
		m.committedB = m.runningB
		m.setStatus(cdb.StatusSuccess)

	default:
		m.fail(cdb.FailUnknownCommand)
	}
}

func (m *Module) startDownload(payload []byte) {
	if !m.unlocked {
		m.fail(cdb.FailIncompatibleState)
		return
	}
	if len(payload) < 8 {
		m.fail(cdb.FailParameterRange)
		return
	}
	m.imageSize = binary.BigEndian.Uint32(payload[0:4])
	m.header = append([]byte(nil), payload[8:]...)
	m.flash = make([]byte, m.imageSize)
	m.written = 0
	m.downloading = true
	m.downloadComplete = false
	m.stagedStale = true
	m.setStatus(cdb.StatusSuccess)
}

func (m *Module) writeLPL(frame, payload []byte) {
	if !m.downloading {
		m.fail(cdb.FailIncompatibleState)
		return
	}
	lplLen := int(frame[4])
	if lplLen < 4 || len(payload) < lplLen {
		m.fail(cdb.FailParameterRange)
		return
	}
	addr := binary.BigEndian.Uint32(payload[0:4])
	data := payload[4:lplLen]
	if addr+uint32(len(data)) > m.imageSize {
		m.fail(cdb.FailParameterRange)
		return
	}
	copy(m.flash[addr:], data)
	m.written += uint32(len(data))
	m.setStatus(cdb.StatusSuccess)
}

func (m *Module) completeEPL(payload []byte) {
	if !m.downloading {
		m.fail(cdb.FailIncompatibleState)
		return
	}
	if len(payload) < 4 {
		m.fail(cdb.FailParameterRange)
		return
	}
	addr := binary.BigEndian.Uint32(payload[0:4])
	n := uint32(len(m.staged))
	if remaining := m.imageSize - addr; n > remaining {
		n = remaining
	}
	copy(m.flash[addr:], m.staged[:n])
	m.written += n
	m.stagedStale = true
	m.setStatus(cdb.StatusSuccess)
}

func (m *Module) firmwareInfoReply() []byte {
	rpl := make([]byte, 178)
	var status byte
	if m.runningB {
		status |= 0x10
	} else {
		status |= 0x01
	}
	if m.committedB {
		status |= 0x20
	} else {
		status |= 0x02
	}
	rpl[0] = status
	rpl[2] = m.VersionA.Major
	rpl[3] = m.VersionA.Minor
	binary.BigEndian.PutUint16(rpl[4:6], m.VersionA.Build)
	rpl[174] = m.VersionB.Major
	rpl[175] = m.VersionB.Minor
	binary.BigEndian.PutUint16(rpl[176:178], m.VersionB.Build)
	return rpl
}

// checksumValid verifies the check code over the declared frame. Inline
// padding past the declared LPL length is all zeros and does not disturb
// the sum.
func checksumValid(frame []byte) bool {
	var sum byte
	for _, b := range frame {
		sum += b
	}
	return sum == 0xFF
}
