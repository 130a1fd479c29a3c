package transfer

import (
	"bytes"
	"testing"

	"github.com/optomod/cdbflash/internal/cdb"
	"github.com/optomod/cdbflash/internal/mem"
)

func TestPageCount(t *testing.T) {
	tests := []struct {
		unit, pageLength, expected int
	}{
		{2048, 128, 16},
		{2047, 128, 16},
		{129, 128, 2},
		{128, 128, 1},
		{1, 128, 1},
	}
	for _, tc := range tests {
		if got := PageCount(tc.unit, tc.pageLength); got != tc.expected {
			t.Errorf("PageCount(%d, %d) = %d, want %d", tc.unit, tc.pageLength, got, tc.expected)
		}
	}
}

func TestSectionCount(t *testing.T) {
	tests := []struct {
		unit, granularity, expected int
	}{
		{2048, 64, 32},
		{2048, 100, 21},
		{100, 100, 1},
	}
	for _, tc := range tests {
		if got := SectionCount(tc.unit, tc.granularity); got != tc.expected {
			t.Errorf("SectionCount(%d, %d) = %d, want %d", tc.unit, tc.granularity, got, tc.expected)
		}
	}
}

func TestSession_ChunkingClipsFinalChunk(t *testing.T) {
	s, err := NewBulkSession(5000, 2048, FixedPaging, 0)
	if err != nil {
		t.Fatalf("NewBulkSession: %v", err)
	}

	var sizes []int
	for {
		_, n, ok := s.Next()
		if !ok {
			break
		}
		sizes = append(sizes, n)
		if err := s.Advance(n); err != nil {
			t.Fatalf("Advance(%d): %v", n, err)
		}
	}

	want := []int{2048, 2048, 904}
	if len(sizes) != len(want) {
		t.Fatalf("chunk sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("chunk sizes = %v, want %v", sizes, want)
		}
	}
	if !s.Complete() {
		t.Error("session not complete after consuming all chunks")
	}
}

func TestSession_ExactMultipleKeepsFullFinalChunk(t *testing.T) {
	s, err := NewBulkSession(4096, 2048, FixedPaging, 0)
	if err != nil {
		t.Fatalf("NewBulkSession: %v", err)
	}
	for i := 0; i < 2; i++ {
		_, n, ok := s.Next()
		if !ok {
			t.Fatalf("Next exhausted after %d chunks", i)
		}
		if n != 2048 {
			t.Errorf("chunk %d size = %d, want 2048", i, n)
		}
		s.Advance(n)
	}
	if _, _, ok := s.Next(); ok {
		t.Error("Next produced a chunk past the image end")
	}
}

func TestSession_CursorMonotonic(t *testing.T) {
	s := NewInlineSession(400)
	sizes := []int{116, 116, 116, 52}
	var total uint32
	for _, n := range sizes {
		addr, got, ok := s.Next()
		if !ok {
			t.Fatal("Next exhausted early")
		}
		if got != n {
			t.Fatalf("chunk size = %d, want %d", got, n)
		}
		if addr != total {
			t.Errorf("chunk address = %d, want %d", addr, total)
		}
		if err := s.Advance(n); err != nil {
			t.Fatalf("Advance: %v", err)
		}
		total += uint32(n)
		if s.Cursor() != total {
			t.Errorf("cursor = %d, want %d", s.Cursor(), total)
		}
	}
}

func TestSession_AdvancePastEnd(t *testing.T) {
	s := NewInlineSession(100)
	if err := s.Advance(101); err == nil {
		t.Fatal("Advance past the image end succeeded")
	}
	if err := s.Advance(-1); err == nil {
		t.Fatal("negative Advance succeeded")
	}
}

func TestNewBulkSession_AutoPagingNeedsGranularity(t *testing.T) {
	if _, err := NewBulkSession(100, 2048, AutoPaging, 0); err == nil {
		t.Fatal("NewBulkSession accepted auto paging without a granularity")
	}
}

// stagingDevice records writes for staging assertions.
type stagingDevice struct {
	offsets []uint32
	chunks  [][]byte
}

func (d *stagingDevice) ReadField(f mem.Field) (byte, error) { return 0, nil }

func (d *stagingDevice) ReadBytes(offset uint32, n int) ([]byte, error) {
	return make([]byte, n), nil
}

func (d *stagingDevice) WriteBytes(offset uint32, p []byte) error {
	d.offsets = append(d.offsets, offset)
	d.chunks = append(d.chunks, append([]byte(nil), p...))
	return nil
}

func TestStageEPL_FixedPaging(t *testing.T) {
	params := cdb.DefaultParams()
	dev := &stagingDevice{}
	s, _ := NewBulkSession(2048, 2048, FixedPaging, 0)

	data := make([]byte, 2048)
	for i := range data {
		data[i] = byte(i)
	}
	if err := StageEPL(dev, params, s, data); err != nil {
		t.Fatalf("StageEPL: %v", err)
	}

	if len(dev.offsets) != 16 {
		t.Fatalf("page writes = %d, want 16", len(dev.offsets))
	}
	for i, off := range dev.offsets {
		if want := params.EPLAddr(i); off != want {
			t.Errorf("write %d at offset %d, want %d", i, off, want)
		}
		if !bytes.Equal(dev.chunks[i], data[i*128:(i+1)*128]) {
			t.Errorf("write %d carried wrong bytes", i)
		}
	}
}

func TestStageEPL_FixedPagingShortFinalUnit(t *testing.T) {
	params := cdb.DefaultParams()
	dev := &stagingDevice{}
	s, _ := NewBulkSession(300, 2048, FixedPaging, 0)

	data := make([]byte, 300)
	if err := StageEPL(dev, params, s, data); err != nil {
		t.Fatalf("StageEPL: %v", err)
	}

	if len(dev.offsets) != 3 {
		t.Fatalf("page writes = %d, want 3", len(dev.offsets))
	}
	if len(dev.chunks[2]) != 44 {
		t.Errorf("final page write = %d bytes, want 44", len(dev.chunks[2]))
	}
}

func TestStageEPL_AutoPaging(t *testing.T) {
	params := cdb.DefaultParams()
	dev := &stagingDevice{}
	s, err := NewBulkSession(2048, 2048, AutoPaging, 64)
	if err != nil {
		t.Fatalf("NewBulkSession: %v", err)
	}

	data := make([]byte, 200)
	if err := StageEPL(dev, params, s, data); err != nil {
		t.Fatalf("StageEPL: %v", err)
	}

	// 64 + 64 + 64 + 8, at strictly increasing offsets from the first
	// staging page.
	if len(dev.offsets) != 4 {
		t.Fatalf("writes = %d, want 4", len(dev.offsets))
	}
	base := params.EPLAddr(0)
	for i, off := range dev.offsets {
		if want := base + uint32(i*64); off != want {
			t.Errorf("write %d at offset %d, want %d", i, off, want)
		}
		if i > 0 && off <= dev.offsets[i-1] {
			t.Errorf("offsets not strictly increasing: %v", dev.offsets)
		}
	}
	if len(dev.chunks[3]) != 8 {
		t.Errorf("final write = %d bytes, want 8", len(dev.chunks[3]))
	}
}

func TestStageEPL_RejectsOversizedUnit(t *testing.T) {
	params := cdb.DefaultParams()
	s, _ := NewBulkSession(4096, 2048, FixedPaging, 0)
	err := StageEPL(&stagingDevice{}, params, s, make([]byte, 2049))
	if err == nil {
		t.Fatal("StageEPL accepted more than one unit")
	}
}
