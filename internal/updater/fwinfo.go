package updater

import (
	"encoding/binary"
	"fmt"
)

// Version is a module firmware version triple.
type Version struct {
	Major byte
	Minor byte
	Build uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// Info is the decoded firmware version metadata from the firmware info
// command (0100h).
type Info struct {
	ImageARunning   bool
	ImageACommitted bool
	ImageBRunning   bool
	ImageBCommitted bool

	ImageA Version

	// ImageB is only reported by modules with a long-form reply.
	ImageB      Version
	ImageBValid bool
}

// imageBOffset is where the long-form reply carries the image B version.
const imageBOffset = 174

func parseInfo(rpl []byte) (*Info, error) {
	if len(rpl) < 6 {
		return nil, fmt.Errorf("firmware info reply too short: %d bytes", len(rpl))
	}
	status := rpl[0]
	info := &Info{
		ImageARunning:   status&0x01 != 0,
		ImageACommitted: status&0x02 != 0,
		ImageBRunning:   status&0x10 != 0,
		ImageBCommitted: status&0x20 != 0,
		ImageA: Version{
			Major: rpl[2],
			Minor: rpl[3],
			Build: binary.BigEndian.Uint16(rpl[4:6]),
		},
	}
	if len(rpl) >= imageBOffset+4 {
		info.ImageB = Version{
			Major: rpl[imageBOffset],
			Minor: rpl[imageBOffset+1],
			Build: binary.BigEndian.Uint16(rpl[imageBOffset+2 : imageBOffset+4]),
		}
		info.ImageBValid = true
	}
	return info, nil
}

// Active returns the version of the image currently running.
func (i *Info) Active() (Version, bool) {
	switch {
	case i.ImageARunning:
		return i.ImageA, true
	case i.ImageBRunning && i.ImageBValid:
		return i.ImageB, true
	default:
		return Version{}, false
	}
}

// Features is the decoded firmware-update capability set from the firmware
// features command (0041h).
type Features struct {
	// LPLSupported reports inline (LPL) download support.
	LPLSupported bool

	// EPLSupported reports bulk (EPL) download support.
	EPLSupported bool

	// StartHeaderSize is the vendor header length the download start
	// command expects inline.
	StartHeaderSize int
}

func parseFeatures(rpl []byte) (*Features, error) {
	if len(rpl) < 3 {
		return nil, fmt.Errorf("firmware features reply too short: %d bytes", len(rpl))
	}
	return &Features{
		LPLSupported:    rpl[1]&0x01 != 0,
		EPLSupported:    rpl[1]&0x02 != 0,
		StartHeaderSize: int(rpl[2]),
	}, nil
}
