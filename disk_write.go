//go:build !sdreadonly

package sdspi

// WriteSectors writes count sectors from buf starting at start. buf must be at
// least count*SectorSize long. It returns the number of sectors written before
// any failure. WriteSectors is not built with the sdreadonly tag.
func (dk *Disk) WriteSectors(drive uint8, buf []byte, start uint32, count int) (int, Result) {
	if drive != 0 || count < 0 || count > len(buf)/SectorSize {
		return 0, ResParamError
	}
	n, err := dk.dev.WriteBlocks(buf[:count*SectorSize], start)
	return n, ResultOf(err)
}
