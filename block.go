package sdspi

import (
	"io"
	"log/slog"

	"github.com/soypat/sdspi/sd"
)

// ReadBlocks reads len(dst)/SectorSize consecutive sectors starting at sector
// start into dst, one READ_SINGLE_BLOCK transaction per sector in ascending
// order. It returns the number of sectors read. On error the sectors before
// the failing one are already in dst and the rest of dst is untouched; the
// error is a *TransferError. A range whose command addresses do not fit in
// 32 bits fails with ErrOutOfRange before any sector is transferred.
//
// An uninitialized device is initialized first.
func (d *Device) ReadBlocks(dst []byte, start uint32) (n int, err error) {
	count, ok := sectorCount(len(dst))
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
		token, err := d.readBlock(dst[n*SectorSize:(n+1)*SectorSize], d.sectorAddr(sector))
		if err != nil {
			d.warn("read:fail", slog.Uint64("sector", uint64(sector)), slog.Int("completed", n), slog.String("err", err.Error()))
			return n, &TransferError{Op: "read", Sector: sector, Completed: n, Token: token, Err: err}
		}
		d.trace("read:sector", slog.Uint64("sector", uint64(sector)))
	}
	return n, nil
}

// readBlock reads one block at the protocol address addr into dst.
func (d *Device) readBlock(dst []byte, addr uint32) (token byte, err error) {
	defer d.selectCard()()
	d.sendCommand(sd.READ_SINGLE_BLOCK, addr)
	r1, ok := poll(d.cfg.ResponseAttempts, d.idle, isZero)
	if !ok {
		return r1, ErrNotReady
	}
	token, ok = poll(d.cfg.TokenAttempts, d.idle, sd.IsReadToken)
	if !ok || token != sd.START_BLOCK_TOKEN {
		return token, ErrBadToken
	}
	for i := range dst[:SectorSize] {
		dst[i] = d.idle()
	}
	// Data CRC is clocked in and discarded, it is not verified.
	d.idles(2)
	return token, nil
}

// ReadAt implements io.ReaderAt for sector aligned offsets and lengths.
func (d *Device) ReadAt(p []byte, off int64) (int, error) {
	if off%SectorSize != 0 || off < 0 || off/SectorSize > int64(^uint32(0)) {
		return 0, ErrBufferSize
	}
	n, err := d.ReadBlocks(p, uint32(off/SectorSize))
	return n * SectorSize, err
}

func (d *Device) ensureInit() error {
	if d.Initialized() {
		return nil
	}
	d.debug("lazy init")
	return d.Init()
}

var _ io.ReaderAt = (*Device)(nil)
