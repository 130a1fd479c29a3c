package channel

import (
	"fmt"
	"time"

	"github.com/optomod/cdbflash/internal/cdb"
)

// BusyTimeoutError reports a module that stayed busy past the poll bound.
// It is transient: the command attempt failed, but a retry may complete.
type BusyTimeoutError struct {
	Polls  int
	Waited time.Duration
}

func (e *BusyTimeoutError) Error() string {
	return fmt.Sprintf("device busy after %d polls (%s)", e.Polls, e.Waited)
}

// HardwareFaultError reports a latched firmware fault. It is fatal: the
// module needs vendor-level recovery and no command retry can help.
type HardwareFaultError struct {
	Flags cdb.FaultFlags
}

func (e *HardwareFaultError) Error() string {
	return fmt.Sprintf("hardware fault: %s (0x%02X)", e.Flags, byte(e.Flags))
}
