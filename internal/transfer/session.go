// Package transfer moves firmware bytes into the device: it owns the chunk
// math, the address cursor, and the two EPL staging strategies.
package transfer

import (
	"fmt"

	"github.com/optomod/cdbflash/internal/cdb"
)

// Paging selects how an EPL unit is staged into the device's page space.
// It is chosen once per session, never per write.
type Paging int

const (
	// FixedPaging splits the unit into page-length writes addressed at
	// consecutive staging pages.
	FixedPaging Paging = iota

	// AutoPaging writes at the device-advertised granularity with strictly
	// increasing offsets; the device advances its page pointer internally.
	AutoPaging
)

func (p Paging) String() string {
	switch p {
	case FixedPaging:
		return "fixed"
	case AutoPaging:
		return "auto"
	default:
		return fmt.Sprintf("paging(%d)", int(p))
	}
}

// Mode selects the transfer path for a session's chunks.
type Mode int

const (
	// Inline carries each chunk in the command's LPL field.
	Inline Mode = iota

	// Bulk stages each chunk into the EPL area, then commits it to flash
	// with one command.
	Bulk
)

func (m Mode) String() string {
	if m == Inline {
		return "lpl"
	}
	return "epl"
}

// Session tracks one in-flight download: the target address cursor, the
// image size, and the chosen transfer mode. It is owned by exactly one
// update and is not safe for concurrent use.
type Session struct {
	mode        Mode
	paging      Paging
	granularity int
	chunkSize   int
	size        uint32
	start       uint32
	cursor      uint32
}

// NewInlineSession returns a session that transfers the whole image through
// LPL writes of up to cdb.MaxLPLData bytes.
func NewInlineSession(imageSize uint32) *Session {
	return &Session{
		mode:      Inline,
		chunkSize: cdb.MaxLPLData,
		size:      imageSize,
	}
}

// NewBulkSession returns a session that transfers the image through EPL
// units. granularity is the device-advertised write length and is only used
// with AutoPaging.
func NewBulkSession(imageSize uint32, unit int, paging Paging, granularity int) (*Session, error) {
	if unit <= 0 {
		return nil, fmt.Errorf("invalid EPL unit %d", unit)
	}
	if paging == AutoPaging && granularity <= 0 {
		return nil, fmt.Errorf("auto paging requires a write granularity, got %d", granularity)
	}
	return &Session{
		mode:        Bulk,
		paging:      paging,
		granularity: granularity,
		chunkSize:   unit,
		size:        imageSize,
	}, nil
}

// Mode returns the session's transfer mode.
func (s *Session) Mode() Mode { return s.mode }

// Paging returns the EPL staging strategy.
func (s *Session) Paging() Paging { return s.paging }

// Granularity returns the auto-paging write length.
func (s *Session) Granularity() int { return s.granularity }

// ChunkSize returns the nominal bytes moved per chunk.
func (s *Session) ChunkSize() int { return s.chunkSize }

// Size returns the total image size.
func (s *Session) Size() uint32 { return s.size }

// Cursor returns the current target address.
func (s *Session) Cursor() uint32 { return s.start + s.cursor }

// Remaining returns the bytes left to transfer.
func (s *Session) Remaining() uint32 { return s.size - s.cursor }

// Complete reports whether the cursor has reached the image size.
func (s *Session) Complete() bool { return s.cursor == s.size }

// Next returns the address and length of the next chunk, clipping the final
// chunk to the remaining byte count. ok is false once the image is consumed.
func (s *Session) Next() (addr uint32, n int, ok bool) {
	if s.Complete() {
		return 0, 0, false
	}
	n = s.chunkSize
	if rem := int(s.Remaining()); n > rem {
		n = rem
	}
	return s.Cursor(), n, true
}

// Advance moves the cursor forward by n bytes after a successful chunk
// write. The cursor only ever increases and never passes the image size.
func (s *Session) Advance(n int) error {
	if n < 0 {
		return fmt.Errorf("cannot advance cursor by %d", n)
	}
	if uint32(n) > s.Remaining() {
		return fmt.Errorf("advance of %d bytes passes image end (remaining %d)",
			n, s.Remaining())
	}
	s.cursor += uint32(n)
	return nil
}
