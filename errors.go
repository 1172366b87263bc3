package sdspi

import (
	"errors"
	"strconv"
)

var (
	ErrNoDisk        = errors.New("sdspi: no such drive")
	ErrNoInit        = errors.New("sdspi: card not initialized")
	ErrNotReady      = errors.New("sdspi: card not ready")
	ErrBadToken      = errors.New("sdspi: unexpected token")
	ErrWriteRejected = errors.New("sdspi: write rejected")
	ErrWriteCRC      = errors.New("sdspi: write crc error")
	ErrBusyTimeout   = errors.New("sdspi: timeout waiting for write to finish")
	ErrBufferSize    = errors.New("sdspi: buffer length not a multiple of sector size")
	ErrOutOfRange    = errors.New("sdspi: sector range not addressable by card")
)

// TransferError reports a multi-sector transfer that stopped early.
// Sectors before Sector were transferred; Sector and the ones after it were not.
type TransferError struct {
	Op        string // "read" or "write".
	Sector    uint32 // Sector at which the transfer failed.
	Completed int    // Sectors transferred before the failure.
	Token     byte   // Last byte received from the card when the failure was detected.
	Err       error
}

func (e *TransferError) Error() string {
	return e.Err.Error() + ": " + e.Op + " sector " + strconv.FormatUint(uint64(e.Sector), 10) +
		" after " + strconv.Itoa(e.Completed) + " sectors, last token 0x" + strconv.FormatUint(uint64(e.Token), 16)
}

func (e *TransferError) Unwrap() error { return e.Err }

// DiskStatus is the state of the drive as reported to the filesystem layer.
type DiskStatus uint8

const (
	StatusOK     DiskStatus = 0
	StatusNoInit DiskStatus = 1 << 0
	StatusNoDisk DiskStatus = 1 << 1
)

func (s DiskStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoInit:
		return "noinit"
	case StatusNoDisk:
		return "nodisk"
	}
	return "DiskStatus(" + strconv.Itoa(int(s)) + ")"
}

// Result is the outcome of a sector transfer or control operation.
type Result uint8

const (
	ResOK Result = iota
	ResError
	ResNotReady
	ResParamError
)

func (r Result) String() string {
	switch r {
	case ResOK:
		return "ok"
	case ResError:
		return "error"
	case ResNotReady:
		return "not-ready"
	case ResParamError:
		return "param-error"
	}
	return "Result(" + strconv.Itoa(int(r)) + ")"
}

// ResultOf maps an error returned by Device to the Result reported by Disk.
func ResultOf(err error) Result {
	switch {
	case err == nil:
		return ResOK
	case errors.Is(err, ErrNoDisk), errors.Is(err, ErrBufferSize), errors.Is(err, ErrOutOfRange):
		return ResParamError
	case errors.Is(err, ErrNotReady), errors.Is(err, ErrNoInit), errors.Is(err, ErrBusyTimeout):
		return ResNotReady
	}
	return ResError
}
