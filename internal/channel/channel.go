// Package channel maps logical CDB command traffic onto the paged register
// space: arming commands, reading replies, and polling for completion.
package channel

import (
	"fmt"
	"time"

	"github.com/optomod/cdbflash/internal/cdb"
	"github.com/optomod/cdbflash/internal/mem"
)

// Timing bounds the busy-wait loop.
type Timing struct {
	// PollInterval is the delay between status reads while busy.
	PollInterval time.Duration

	// MaxPolls caps the number of status reads before giving up.
	MaxPolls int
}

// DefaultTiming polls once a second for up to ten seconds.
func DefaultTiming() Timing {
	return Timing{
		PollInterval: time.Second,
		MaxPolls:     10,
	}
}

// Channel drives the CDB command/reply mailbox of one device.
type Channel struct {
	dev    mem.Device
	params cdb.Params
	timing Timing
}

// New returns a Channel over dev using the given protocol geometry.
func New(dev mem.Device, params cdb.Params, timing Timing) *Channel {
	if timing.PollInterval <= 0 {
		timing.PollInterval = DefaultTiming().PollInterval
	}
	if timing.MaxPolls <= 0 {
		timing.MaxPolls = DefaultTiming().MaxPolls
	}
	return &Channel{dev: dev, params: params, timing: timing}
}

// WriteCommand writes an encoded frame to the command mailbox. The body goes
// first; the 2-byte opcode word is written last because the device treats
// that write as "command armed".
func (c *Channel) WriteCommand(frame []byte) error {
	if len(frame) < cdb.HeaderLength {
		return fmt.Errorf("frame too short: %d bytes", len(frame))
	}
	if err := c.dev.WriteBytes(c.params.BodyAddr(), frame[2:]); err != nil {
		return fmt.Errorf("write command body: %w", err)
	}
	if err := c.dev.WriteBytes(c.params.TriggerAddr(), frame[:2]); err != nil {
		return fmt.Errorf("write command trigger: %w", err)
	}
	return nil
}

// ReadReply reads the reply length and check code fields, then exactly that
// many payload bytes from the reply region.
func (c *Channel) ReadReply() (*cdb.Reply, error) {
	length, err := c.dev.ReadField(mem.FieldReplyLength)
	if err != nil {
		return nil, fmt.Errorf("read reply length: %w", err)
	}
	check, err := c.dev.ReadField(mem.FieldReplyChecksum)
	if err != nil {
		return nil, fmt.Errorf("read reply check code: %w", err)
	}
	var payload []byte
	if length > 0 {
		payload, err = c.dev.ReadBytes(c.params.ReplyAddr(), int(length))
		if err != nil {
			return nil, fmt.Errorf("read reply payload: %w", err)
		}
	}
	return &cdb.Reply{Length: length, CheckCode: check, Payload: payload}, nil
}

// Status reads the CDB command status byte once.
func (c *Channel) Status() (cdb.Status, error) {
	b, err := c.dev.ReadField(mem.FieldCdbStatus)
	if err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	return cdb.Status(b), nil
}

// CheckFaults reads the latched fault flags. A set firmware fault bit is a
// hardware failure regardless of what the status byte says.
func (c *Channel) CheckFaults() error {
	b, err := c.dev.ReadField(mem.FieldFirmwareFault)
	if err != nil {
		return fmt.Errorf("read fault flags: %w", err)
	}
	flags := cdb.FaultFlags(b)
	if flags.Faulted() {
		return &HardwareFaultError{Flags: flags}
	}
	return nil
}

// WaitReady polls the status byte until the module leaves the busy state,
// sleeping PollInterval between reads. It never blocks past
// MaxPolls * PollInterval; hitting the bound yields a BusyTimeoutError.
func (c *Channel) WaitReady() (cdb.Status, error) {
	var status cdb.Status
	for i := 0; i < c.timing.MaxPolls; i++ {
		var err error
		status, err = c.Status()
		if err != nil {
			return 0, err
		}
		if !status.Busy() {
			return status, nil
		}
		time.Sleep(c.timing.PollInterval)
	}
	return status, &BusyTimeoutError{
		Polls:  c.timing.MaxPolls,
		Waited: time.Duration(c.timing.MaxPolls) * c.timing.PollInterval,
	}
}

// WriteGranularity returns the device-advertised EPL write length in bytes,
// or 0 when the device does not advertise one. The field encodes the length
// in units of 8 bytes.
func (c *Channel) WriteGranularity() (int, error) {
	b, err := c.dev.ReadField(mem.FieldWriteGranularity)
	if err != nil {
		return 0, fmt.Errorf("read write granularity: %w", err)
	}
	n := int(b & 0x0F)
	if n == 0 {
		return 0, nil
	}
	return n * 8, nil
}

// Device exposes the underlying register device for the transfer layer's
// bulk page writes.
func (c *Channel) Device() mem.Device {
	return c.dev
}

// Params returns the protocol geometry the channel was built with.
func (c *Channel) Params() cdb.Params {
	return c.params
}
