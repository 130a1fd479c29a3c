// Package bridge implements the register/memory surface over a USB-serial
// register adapter: a small fixed-frame protocol carrying raw paged reads
// and writes. The bus behind the adapter (I2C, MDIO) is the adapter's
// concern, not ours.
package bridge

import (
	"encoding/binary"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/optomod/cdbflash/internal/mem"
)

// Wire opcodes.
const (
	opRead  = 0x52 // 'R'
	opWrite = 0x57 // 'W'
	opPing  = 0x50 // 'P'
)

// Request frame: opcode (1), flat offset (4, big-endian), length (2,
// big-endian), payload (writes only).
// Reply frame: opcode echo (1), status (1, 0 = ok), payload (reads only).
const requestHeaderLen = 7

// DefaultBaudRate matches the stock adapter firmware.
const DefaultBaudRate = 115200

// Bridge is a mem.Device backed by a serial register adapter.
type Bridge struct {
	port     serial.Port
	portName string
	timeout  time.Duration
}

// Open opens the adapter on the given port.
func Open(portName string, baudRate int, timeout time.Duration) (*Bridge, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open port %s: %w", portName, err)
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Bridge{port: port, portName: portName, timeout: timeout}, nil
}

// Close closes the serial port.
func (b *Bridge) Close() error {
	if b.port != nil {
		return b.port.Close()
	}
	return nil
}

// PortName returns the port the bridge was opened on.
func (b *Bridge) PortName() string {
	return b.portName
}

// Ping checks that the adapter answers.
func (b *Bridge) Ping() error {
	_, err := b.roundTrip(opPing, 0, 0, nil)
	return err
}

// ReadField implements mem.Device.
func (b *Bridge) ReadField(f mem.Field) (byte, error) {
	off, err := mem.FieldOffset(f)
	if err != nil {
		return 0, err
	}
	p, err := b.ReadBytes(off, 1)
	if err != nil {
		return 0, fmt.Errorf("read field %s: %w", f, err)
	}
	return p[0], nil
}

// ReadBytes implements mem.Device.
func (b *Bridge) ReadBytes(offset uint32, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	return b.roundTrip(opRead, offset, n, nil)
}

// WriteBytes implements mem.Device.
func (b *Bridge) WriteBytes(offset uint32, p []byte) error {
	_, err := b.roundTrip(opWrite, offset, len(p), p)
	return err
}

func (b *Bridge) roundTrip(op byte, offset uint32, n int, payload []byte) ([]byte, error) {
	if n > 0xFFFF {
		return nil, fmt.Errorf("transfer of %d bytes exceeds frame limit", n)
	}

	req := make([]byte, requestHeaderLen+len(payload))
	req[0] = op
	binary.BigEndian.PutUint32(req[1:5], offset)
	binary.BigEndian.PutUint16(req[5:7], uint16(n))
	copy(req[requestHeaderLen:], payload)

	if _, err := b.port.Write(req); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	want := 2
	if op == opRead {
		want += n
	}
	reply, err := b.readFull(want)
	if err != nil {
		return nil, err
	}
	if reply[0] != op {
		return nil, fmt.Errorf("adapter echoed opcode 0x%02X, sent 0x%02X", reply[0], op)
	}
	if reply[1] != 0 {
		return nil, fmt.Errorf("adapter error 0x%02X for opcode 0x%02X", reply[1], op)
	}
	return reply[2:], nil
}

// readFull accumulates exactly want bytes or fails at the deadline.
func (b *Bridge) readFull(want int) ([]byte, error) {
	buf := make([]byte, 0, want)
	chunk := make([]byte, 256)
	deadline := time.Now().Add(b.timeout)

	for len(buf) < want {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("timeout reading reply: got %d of %d bytes", len(buf), want)
		}
		n, err := b.port.Read(chunk)
		if err != nil {
			return nil, fmt.Errorf("read reply: %w", err)
		}
		buf = append(buf, chunk[:n]...)
	}
	return buf[:want], nil
}

// ListPorts returns the available serial ports.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}

// Probe opens each available port and pings for an adapter, returning the
// first port that answers.
func Probe(baudRate int, timeout time.Duration) (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", fmt.Errorf("failed to list ports: %w", err)
	}
	if len(ports) == 0 {
		return "", fmt.Errorf("no serial ports found")
	}

	var lastErr error
	for _, name := range ports {
		b, err := Open(name, baudRate, timeout)
		if err != nil {
			lastErr = err
			continue
		}
		err = b.Ping()
		b.Close()
		if err == nil {
			return name, nil
		}
		lastErr = err
	}
	if lastErr != nil {
		return "", fmt.Errorf("no register adapter found (last error: %w)", lastErr)
	}
	return "", fmt.Errorf("no register adapter found")
}
