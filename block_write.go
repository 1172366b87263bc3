//go:build !sdreadonly

package sdspi

import (
	"io"
	"log/slog"

	"github.com/soypat/sdspi/sd"
)

// WriteBlocks writes len(src)/SectorSize consecutive sectors starting at sector
// start, one WRITE_BLOCK transaction per sector in ascending order, waiting for
// the card to finish programming each block before starting the next. It
// returns the number of sectors written. On error the error is a *TransferError
// and sectors from TransferError.Sector onward were not written.
//
// An uninitialized device is initialized first.
func (d *Device) WriteBlocks(src []byte, start uint32) (n int, err error) {
	count, ok := sectorCount(len(src))
	if !ok {
		return 0, ErrBufferSize
	}
	if err = d.ensureInit(); err != nil {
		return 0, err
	}
	if err = d.checkRange(start, count); err != nil {
		return 0, err
	}
	for n = 0; n < count; n++ {
		sector := start + uint32(n)
		token, err := d.writeBlock(src[n*SectorSize:(n+1)*SectorSize], d.sectorAddr(sector))
		if err != nil {
			d.warn("write:fail", slog.Uint64("sector", uint64(sector)), slog.Int("completed", n), slog.String("err", err.Error()))
			return n, &TransferError{Op: "write", Sector: sector, Completed: n, Token: token, Err: err}
		}
		d.trace("write:sector", slog.Uint64("sector", uint64(sector)))
	}
	return n, nil
}

// writeBlock writes one block from src at the protocol address addr.
func (d *Device) writeBlock(src []byte, addr uint32) (token byte, err error) {
	defer d.selectCard()()
	d.sendCommand(sd.WRITE_BLOCK, addr)
	r1, ok := poll(d.cfg.ResponseAttempts, d.idle, isZero)
	if !ok {
		return r1, ErrNotReady
	}
	// Gap between command response and data packet.
	d.idles(8)
	d.bus.Transfer(sd.START_BLOCK_TOKEN)
	for _, b := range src[:SectorSize] {
		d.bus.Transfer(b)
	}
	// No CRC is sent: the card clocks in the first idle bytes of this poll as
	// the CRC field, CRC checking being off in SPI mode.
	token, ok = poll(d.cfg.TokenAttempts, d.idle, sd.IsDataResponse)
	if !ok {
		return token, ErrBadToken
	}
	switch resp := sd.DataResponse(token); resp.Status() {
	case sd.DATA_ACCEPTED:
	case sd.DATA_CRC_ERROR:
		return token, ErrWriteCRC
	default:
		return token, ErrWriteRejected
	}
	// Card holds the line low while it programs the block.
	busy, ok := poll(d.cfg.BusyAttempts, d.idle, notBusy)
	if !ok {
		return busy, ErrBusyTimeout
	}
	return token, nil
}

// WriteAt implements io.WriterAt for sector aligned offsets and lengths.
func (d *Device) WriteAt(p []byte, off int64) (int, error) {
	if off%SectorSize != 0 || off < 0 || off/SectorSize > int64(^uint32(0)) {
		return 0, ErrBufferSize
	}
	n, err := d.WriteBlocks(p, uint32(off/SectorSize))
	return n * SectorSize, err
}

var _ io.WriterAt = (*Device)(nil)
