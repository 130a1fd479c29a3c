package transfer

import (
	"fmt"

	"github.com/optomod/cdbflash/internal/cdb"
	"github.com/optomod/cdbflash/internal/mem"
)

// PageCount returns the number of page writes needed to stage unit bytes,
// by ceiling division.
func PageCount(unit, pageLength int) int {
	return (unit + pageLength - 1) / pageLength
}

// SectionCount returns the number of granularity-sized writes needed to
// stage unit bytes, by ceiling division.
func SectionCount(unit, granularity int) int {
	return (unit + granularity - 1) / granularity
}

// StageEPL writes one EPL unit (the final unit may be shorter) into the
// device's staging pages using the session's paging strategy. The staged
// bytes are not committed; the caller follows up with a CompleteEPL command
// carrying the flash target address.
func StageEPL(dev mem.Device, p cdb.Params, s *Session, data []byte) error {
	if len(data) > p.EPLUnit {
		return fmt.Errorf("EPL chunk of %d bytes exceeds unit size %d", len(data), p.EPLUnit)
	}
	if s.paging == AutoPaging {
		return stageAuto(dev, p, data, s.granularity)
	}
	return stageFixed(dev, p, data)
}

// stageFixed writes page-length slices to consecutive staging pages. Each
// page exposes only its upper half, so every write lands at the page's
// init offset.
func stageFixed(dev mem.Device, p cdb.Params, data []byte) error {
	pages := PageCount(len(data), p.PageLength)
	if pages > p.EPLPages {
		return fmt.Errorf("%d staging pages needed, device has %d", pages, p.EPLPages)
	}
	for i := 0; i < pages; i++ {
		lo := i * p.PageLength
		hi := lo + p.PageLength
		if hi > len(data) {
			hi = len(data)
		}
		if err := dev.WriteBytes(p.EPLAddr(i), data[lo:hi]); err != nil {
			return fmt.Errorf("stage page %d: %w", i, err)
		}
	}
	return nil
}

// stageAuto writes granularity-sized slices at strictly increasing offsets
// from the first staging page; the device auto-advances its page pointer.
func stageAuto(dev mem.Device, p cdb.Params, data []byte, granularity int) error {
	base := p.EPLAddr(0)
	for off := 0; off < len(data); off += granularity {
		hi := off + granularity
		if hi > len(data) {
			hi = len(data)
		}
		if err := dev.WriteBytes(base+uint32(off), data[off:hi]); err != nil {
			return fmt.Errorf("stage offset %d: %w", off, err)
		}
	}
	return nil
}
