package cdb

// Params describes the fixed geometry of the CDB channel: where commands,
// replies and the EPL staging area live in the module's paged memory space.
// All offsets are flat (page number * page length + byte within page).
//
// The values never change for CMIS modules, but keeping them in a value
// instead of scattered literals lets the codec and transfer layers be tested
// against a plain byte map.
type Params struct {
	// PageLength is the size of one memory page in bytes.
	PageLength int

	// LPLPage is the page carrying the command header and LPL payload.
	LPLPage int

	// TriggerOffset is the within-page offset of the 2-byte opcode word.
	// Writing it arms the command.
	TriggerOffset int

	// BodyOffset is the within-page offset of the command body (everything
	// after the opcode word). The body must be written before the trigger.
	BodyOffset int

	// ReplyOffset is the within-page offset of the reply payload.
	ReplyOffset int

	// EPLFirstPage is the first page of the EPL staging area.
	EPLFirstPage int

	// EPLPages is the number of pages in the EPL staging area.
	EPLPages int

	// EPLUnit is the number of bytes staged per EPL transfer.
	EPLUnit int

	// ResetDelayCode is the encoded post-reset delay passed to the run
	// command (2 = 512 ms).
	ResetDelayCode byte
}

// DefaultParams returns the standard CMIS CDB geometry.
func DefaultParams() Params {
	return Params{
		PageLength:     128,
		LPLPage:        0x9F,
		TriggerOffset:  128,
		BodyOffset:     130,
		ReplyOffset:    136,
		EPLFirstPage:   0xA0,
		EPLPages:       16,
		EPLUnit:        2048,
		ResetDelayCode: 2,
	}
}

// TriggerAddr returns the flat address of the opcode word.
func (p Params) TriggerAddr() uint32 {
	return uint32(p.LPLPage*p.PageLength + p.TriggerOffset)
}

// BodyAddr returns the flat address of the command body.
func (p Params) BodyAddr() uint32 {
	return uint32(p.LPLPage*p.PageLength + p.BodyOffset)
}

// ReplyAddr returns the flat address of the reply payload.
func (p Params) ReplyAddr() uint32 {
	return uint32(p.LPLPage*p.PageLength + p.ReplyOffset)
}

// EPLAddr returns the flat address of byte 0 of the given EPL staging page.
// Staging pages only expose their upper half, so the usable range starts at
// the page's trigger-offset byte.
func (p Params) EPLAddr(page int) uint32 {
	return uint32((p.EPLFirstPage+page)*p.PageLength + p.TriggerOffset)
}
