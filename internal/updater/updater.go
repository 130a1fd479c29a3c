// Package updater sequences the CDB firmware-update lifecycle: authenticate,
// download, verify, run, commit. Every command goes through the same bounded
// retry envelope and surfaces an explicit outcome; a failed step halts the
// sequence.
package updater

import (
	"errors"
	"fmt"
	"time"

	"github.com/optomod/cdbflash/internal/cdb"
	"github.com/optomod/cdbflash/internal/channel"
	"github.com/optomod/cdbflash/internal/firmware"
	"github.com/optomod/cdbflash/internal/mem"
	"github.com/optomod/cdbflash/internal/transfer"
)

// State is the lifecycle position of an Updater.
type State int

const (
	StateIdle State = iota
	StatePasswordEntered
	StateInitiated
	StateDownloading
	StateDownloadComplete
	StateRunning
	StateCommitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePasswordEntered:
		return "password-entered"
	case StateInitiated:
		return "initiated"
	case StateDownloading:
		return "downloading"
	case StateDownloadComplete:
		return "download-complete"
	case StateRunning:
		return "running"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Updater drives the firmware-update lifecycle on one device. It owns the
// device's CDB channel for its lifetime and is not safe for concurrent use.
type Updater struct {
	ch      *channel.Channel
	cfg     Config
	state   State
	session *transfer.Session

	// features caches the capability discovery reply.
	features *Features
}

// New returns an Updater over dev in the Idle state.
func New(dev mem.Device, opts ...Option) *Updater {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	ch := channel.New(dev, cfg.Params, channel.Timing{
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
	})
	return &Updater{ch: ch, cfg: cfg, state: StateIdle}
}

// State returns the current lifecycle state.
func (u *Updater) State() State {
	return u.state
}

// Session returns the in-flight transfer session, or nil outside a download.
func (u *Updater) Session() *transfer.Session {
	return u.session
}

// execute runs one command through the retry envelope and discards its reply.
func (u *Updater) execute(cmd *cdb.Command) error {
	_, err := u.run(cmd, false)
	return err
}

// reply runs one command through the retry envelope and returns its validated
// reply.
func (u *Updater) reply(cmd *cdb.Command) (*cdb.Reply, error) {
	return u.run(cmd, true)
}

// run is the retry envelope: up to cfg.Retries attempts of write, settle,
// bounded poll, fault check, status check, and (when a reply is wanted) reply
// readback. Transient failures (busy timeout, check-code errors, corrupted
// reply reads) consume an attempt; hardware faults and structural rejections
// propagate immediately. When all attempts fail the last observed cause is
// returned, never success.
func (u *Updater) run(cmd *cdb.Command, wantReply bool) (*cdb.Reply, error) {
	frame := cmd.Encode()
	var lastErr error

	for attempt := 1; attempt <= u.cfg.Retries; attempt++ {
		if err := u.ch.WriteCommand(frame); err != nil {
			return nil, err
		}
		time.Sleep(u.cfg.SettleDelay)

		status, waitErr := u.ch.WaitReady()

		// Latched faults take precedence over whatever the status byte says.
		if err := u.ch.CheckFaults(); err != nil {
			var hw *channel.HardwareFaultError
			if errors.As(err, &hw) {
				u.state = StateFailed
			}
			return nil, err
		}

		if waitErr != nil {
			var busy *channel.BusyTimeoutError
			if !errors.As(waitErr, &busy) {
				return nil, waitErr
			}
			u.cfg.Logger.Warn().
				Uint16("opcode", cmd.Opcode).
				Int("attempt", attempt).
				Msg("command still busy, retrying")
			lastErr = waitErr
			continue
		}

		if status.Ok() {
			if !wantReply {
				u.cfg.Logger.Debug().
					Uint16("opcode", cmd.Opcode).
					Int("attempt", attempt).
					Msg("command complete")
				return nil, nil
			}
			rpl, err := u.ch.ReadReply()
			if err != nil {
				return nil, err
			}
			if err := rpl.Validate(); err != nil {
				// A corrupted reply read retries like a device-side
				// check-code failure.
				u.cfg.Logger.Warn().
					Uint16("opcode", cmd.Opcode).
					Int("attempt", attempt).
					Msg("reply check code mismatch, retrying")
				lastErr = err
				continue
			}
			u.cfg.Logger.Debug().
				Uint16("opcode", cmd.Opcode).
				Int("attempt", attempt).
				Msg("command complete")
			return rpl, nil
		}

		cmdErr := &cdb.CommandError{Opcode: cmd.Opcode, Status: status}
		if !cmdErr.Transient() {
			return nil, cmdErr
		}
		u.cfg.Logger.Warn().
			Uint16("opcode", cmd.Opcode).
			Int("attempt", attempt).
			Str("status", status.String()).
			Msg("command failed, retrying")
		lastErr = cmdErr
	}

	return nil, &RetryExhaustedError{
		Opcode:   cmd.Opcode,
		Attempts: u.cfg.Retries,
		Cause:    lastErr,
	}
}

// QueryStatus reads the module/CDB status block. Allowed in any state; the
// state is unchanged.
func (u *Updater) QueryStatus() (*cdb.Reply, error) {
	return u.reply(cdb.QueryStatus())
}

// EnterPassword unlocks the privileged command set.
func (u *Updater) EnterPassword() error {
	if u.state != StateIdle {
		return &StateError{Op: "enter password", State: u.state}
	}
	if err := u.execute(cdb.EnterPassword(u.cfg.Password)); err != nil {
		return err
	}
	u.state = StatePasswordEntered
	return nil
}

// ModuleFeatures queries the module capability set.
func (u *Updater) ModuleFeatures() (*cdb.Reply, error) {
	if u.state != StatePasswordEntered {
		return nil, &StateError{Op: "query module features", State: u.state}
	}
	return u.reply(cdb.ModuleFeatures())
}

// FirmwareFeatures queries and decodes the firmware-update capability set.
func (u *Updater) FirmwareFeatures() (*Features, error) {
	if u.state != StatePasswordEntered {
		return nil, &StateError{Op: "query firmware features", State: u.state}
	}
	rpl, err := u.reply(cdb.FirmwareFeatures())
	if err != nil {
		return nil, err
	}
	feats, err := parseFeatures(rpl.Payload)
	if err != nil {
		return nil, err
	}
	u.features = feats
	return feats, nil
}

// FirmwareInfo queries the active/inactive firmware version metadata.
func (u *Updater) FirmwareInfo() (*Info, error) {
	if u.state != StatePasswordEntered {
		return nil, &StateError{Op: "query firmware info", State: u.state}
	}
	rpl, err := u.reply(cdb.FirmwareInfo())
	if err != nil {
		return nil, err
	}
	return parseInfo(rpl.Payload)
}

// StartDownload declares the image size and vendor header to the module and
// opens a transfer session. The transfer mode is picked from the device's
// capability advertisement unless the configuration forces inline transfers.
func (u *Updater) StartDownload(img *firmware.Image) error {
	if u.state != StatePasswordEntered {
		return &StateError{Op: "start download", State: u.state}
	}

	session, err := u.newSession(img)
	if err != nil {
		return err
	}

	cmd, err := cdb.StartDownload(img.Size(), img.Header)
	if err != nil {
		return err
	}
	if err := u.execute(cmd); err != nil {
		return err
	}

	u.session = session
	u.state = StateInitiated
	u.cfg.Logger.Info().
		Uint32("size", img.Size()).
		Str("mode", session.Mode().String()).
		Msg("download started")
	return nil
}

// newSession picks the transfer mode for the image. EPL is preferred when
// the device advertises it; auto paging needs an advertised write
// granularity and otherwise degrades to fixed paging.
func (u *Updater) newSession(img *firmware.Image) (*transfer.Session, error) {
	if u.cfg.ForceInline {
		return transfer.NewInlineSession(img.Size()), nil
	}

	feats := u.features
	if feats == nil {
		var err error
		if feats, err = u.FirmwareFeatures(); err != nil {
			return nil, fmt.Errorf("discover transfer capabilities: %w", err)
		}
	}
	if !feats.EPLSupported {
		return transfer.NewInlineSession(img.Size()), nil
	}

	paging := u.cfg.Paging
	granularity := 0
	if paging == transfer.AutoPaging {
		var err error
		granularity, err = u.ch.WriteGranularity()
		if err != nil {
			return nil, err
		}
		if granularity == 0 {
			paging = transfer.FixedPaging
		}
	}
	return transfer.NewBulkSession(img.Size(), u.cfg.Params.EPLUnit, paging, granularity)
}

// WriteChunk transfers one chunk at the session cursor and advances it.
func (u *Updater) WriteChunk(data []byte) error {
	if u.state != StateInitiated && u.state != StateDownloading {
		return &StateError{Op: "write chunk", State: u.state}
	}
	if u.session == nil {
		return &StateError{Op: "write chunk without a session", State: u.state}
	}
	addr, n, ok := u.session.Next()
	if !ok {
		return &StateError{Op: "write chunk past image end", State: u.state}
	}
	if len(data) > n {
		data = data[:n]
	}

	switch u.session.Mode() {
	case transfer.Inline:
		cmd, err := cdb.WriteLPL(addr, data)
		if err != nil {
			return err
		}
		if err := u.execute(cmd); err != nil {
			return err
		}
	case transfer.Bulk:
		if err := transfer.StageEPL(u.ch.Device(), u.cfg.Params, u.session, data); err != nil {
			return err
		}
		if err := u.execute(cdb.CompleteEPL(addr, u.cfg.Params.EPLUnit)); err != nil {
			return err
		}
	}

	if err := u.session.Advance(len(data)); err != nil {
		return err
	}
	u.state = StateDownloading
	return nil
}

// Download drives the whole image through the session chunk by chunk and
// finalizes it with the completion command.
func (u *Updater) Download(img *firmware.Image) error {
	if err := u.StartDownload(img); err != nil {
		return err
	}

	total := len(img.Payload)
	for {
		_, n, ok := u.session.Next()
		if !ok {
			break
		}
		written := int(u.session.Size() - u.session.Remaining())
		if err := u.WriteChunk(img.Payload[written : written+n]); err != nil {
			return err
		}
		if u.cfg.Progress != nil {
			u.cfg.Progress(written+n, total)
		}
	}

	return u.CompleteDownload()
}

// CompleteDownload finalizes the staged image. It only succeeds once the
// session cursor equals the declared image size.
func (u *Updater) CompleteDownload() error {
	if u.state != StateDownloading {
		return &StateError{Op: "complete download", State: u.state}
	}
	if u.session == nil {
		return &StateError{Op: "complete download without a session", State: u.state}
	}
	if !u.session.Complete() {
		return &IncompleteDownloadError{
			Written: u.session.Cursor(),
			Size:    u.session.Size(),
		}
	}
	if err := u.execute(cdb.CompleteDownload()); err != nil {
		return err
	}
	u.session = nil
	u.state = StateDownloadComplete
	u.cfg.Logger.Info().Msg("download complete")
	return nil
}

// AbortDownload cancels an in-flight transfer and discards the session.
func (u *Updater) AbortDownload() error {
	if u.state != StateInitiated && u.state != StateDownloading {
		return &StateError{Op: "abort download", State: u.state}
	}
	if err := u.execute(cdb.AbortDownload()); err != nil {
		return err
	}
	u.session = nil
	u.state = StateIdle
	u.cfg.Logger.Info().Msg("download aborted")
	return nil
}

// RunImage resets the module into an image per mode. The module grants the
// host a fixed post-reset delay before it expects further traffic.
func (u *Updater) RunImage(mode cdb.RunMode) error {
	if u.state != StateDownloadComplete {
		return &StateError{Op: "run image", State: u.state}
	}
	if err := u.execute(cdb.RunImage(mode, u.cfg.Params.ResetDelayCode)); err != nil {
		return err
	}
	u.state = StateRunning
	u.cfg.Logger.Info().Str("mode", mode.String()).Msg("image running")
	return nil
}

// CommitImage marks the running image as persistent across future resets.
func (u *Updater) CommitImage() error {
	if u.state != StateRunning {
		return &StateError{Op: "commit image", State: u.state}
	}
	if err := u.execute(cdb.CommitImage()); err != nil {
		return err
	}
	u.state = StateCommitted
	u.cfg.Logger.Info().Msg("image committed")
	return nil
}

// Resume seeds the lifecycle state for an operator recovering a module whose
// update outlived the controlling process: aborting a stale download,
// running a downloaded image, or committing after a reset. Only Downloading,
// DownloadComplete and Running can be resumed, and only before this Updater
// has begun a download of its own. A resumed Downloading state carries no
// transfer session and supports only AbortDownload.
func (u *Updater) Resume(s State) error {
	if u.state != StateIdle && u.state != StatePasswordEntered {
		return &StateError{Op: "resume", State: u.state}
	}
	switch s {
	case StateDownloading, StateDownloadComplete, StateRunning:
		u.state = s
		return nil
	default:
		return fmt.Errorf("cannot resume into state %s", s)
	}
}
