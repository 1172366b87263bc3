package sdspi

// IoctlOp is a control operation accepted by Disk.Ioctl.
type IoctlOp uint8

const (
	// IoctlSync flushes pending writes. There is no write cache so it always succeeds.
	IoctlSync IoctlOp = 0
)

// Disk is the block device contract a FAT filesystem layer expects: a single
// logical drive numbered 0 backed by a Device.
type Disk struct {
	dev *Device
}

// NewDisk returns the drive 0 view of dev.
func NewDisk(dev *Device) *Disk { return &Disk{dev: dev} }

// Device returns the underlying card.
func (dk *Disk) Device() *Device { return dk.dev }

// Initialize negotiates with the card of drive.
func (dk *Disk) Initialize(drive uint8) DiskStatus {
	if drive != 0 {
		return StatusNoDisk
	}
	if err := dk.dev.Init(); err != nil {
		return StatusNoInit
	}
	return StatusOK
}

// Status reports the state of drive without touching the bus.
func (dk *Disk) Status(drive uint8) DiskStatus {
	if drive != 0 {
		return StatusNoDisk
	}
	if !dk.dev.Initialized() {
		return StatusNoInit
	}
	return StatusOK
}

// ReadSectors reads count sectors starting at start into buf, which must be at
// least count*SectorSize long. It returns the number of sectors read before any
// failure.
func (dk *Disk) ReadSectors(drive uint8, buf []byte, start uint32, count int) (int, Result) {
	if drive != 0 || count < 0 || count > len(buf)/SectorSize {
		return 0, ResParamError
	}
	n, err := dk.dev.ReadBlocks(buf[:count*SectorSize], start)
	return n, ResultOf(err)
}

// Ioctl runs the control operation op on drive. Only IoctlSync is supported.
func (dk *Disk) Ioctl(drive uint8, op IoctlOp) Result {
	if drive != 0 || op != IoctlSync {
		return ResParamError
	}
	return ResOK
}
