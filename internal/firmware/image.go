// Package firmware loads vendor firmware files for CDB download.
package firmware

import (
	"fmt"
	"os"
)

// Image is a firmware file split into its vendor header and the flashable
// payload. The header travels inline in the download start command; the
// payload is consumed strictly sequentially by address offset.
type Image struct {
	Header  []byte
	Payload []byte
}

// Load reads a firmware file and splits off the vendor header. headerSize is
// vendor-defined and passed verbatim to the download start command.
func Load(path string, headerSize int) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read firmware file: %w", err)
	}
	return Parse(raw, headerSize)
}

// Parse splits a raw firmware byte sequence into header and payload.
func Parse(raw []byte, headerSize int) (*Image, error) {
	if headerSize < 0 {
		return nil, fmt.Errorf("negative header size %d", headerSize)
	}
	if len(raw) <= headerSize {
		return nil, fmt.Errorf("firmware of %d bytes is no larger than its %d-byte header",
			len(raw), headerSize)
	}
	return &Image{
		Header:  append([]byte(nil), raw[:headerSize]...),
		Payload: append([]byte(nil), raw[headerSize:]...),
	}, nil
}

// Size returns the flashable payload size declared to the device.
func (im *Image) Size() uint32 {
	return uint32(len(im.Payload))
}
