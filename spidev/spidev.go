//go:build linux

// Package spidev implements sdspi.Transport over a Linux /dev/spidevB.C character device.
//
// The kernel driver owns the chip select line, so the select state is emulated
// with the per transfer cs_change flag: while selected every byte is sent as a
// message that leaves chip select asserted, and Deselect sends an empty message
// that releases it. Bytes clocked while deselected are sent in SPI_NO_CS mode.
package spidev

import (
	"errors"
	"unsafe"

	"github.com/soypat/sdspi"
	"golang.org/x/sys/unix"
)

// ioctl request numbers from linux/spi/spidev.h, computed with the generic _IOW encoding.
const (
	spiIOCMessage1      = 0x40206b00 // SPI_IOC_MESSAGE(1)
	spiIOCWrMode        = 0x40016b01
	spiIOCWrLSBFirst    = 0x40016b02
	spiIOCWrBitsPerWord = 0x40016b03
	spiIOCWrMaxSpeedHz  = 0x40046b04
)

const (
	modeNoCS  = 0x40 // SPI_NO_CS
	xferBytes = 32
)

// transfer mirrors struct spi_ioc_transfer.
type transfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	wordDelay   uint8
	pad         uint8
}

var _ = [1]struct{}{}[unsafe.Sizeof(transfer{})-xferBytes] // transfer must be 32 bytes.

// Conn is an open spidev device.
type Conn struct {
	fd       int
	base     uint32
	speed    uint32
	mode     uint8
	selected bool
	err      error
	tx, rx   [1]byte
}

var _ sdspi.Transport = (*Conn)(nil)

// Open opens the spidev device at path. baseHz is the clock that corresponds
// to a zero sdspi.BusConfig.ClockDivisor.
func Open(path string, baseHz uint32) (*Conn, error) {
	if baseHz == 0 {
		return nil, errors.New("spidev: zero base frequency")
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	return &Conn{fd: fd, base: baseHz, speed: baseHz}, nil
}

// Close releases the device.
func (c *Conn) Close() error { return unix.Close(c.fd) }

// Err returns the first error encountered by Select, Deselect or Transfer.
// Those methods cannot return errors and report a failed transfer as 0xff.
func (c *Conn) Err() error { return c.err }

func (c *Conn) Configure(cfg sdspi.BusConfig) error {
	c.mode = cfg.Mode()
	c.speed = cfg.Frequency(c.base)
	var lsb uint8
	if cfg.Order == sdspi.LSBFirst {
		lsb = 1
	}
	bits := uint8(8)
	if err := c.setMode(c.mode); err != nil {
		return err
	}
	if err := c.ioctl(spiIOCWrLSBFirst, unsafe.Pointer(&lsb)); err != nil {
		return err
	}
	if err := c.ioctl(spiIOCWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		return err
	}
	return c.ioctl(spiIOCWrMaxSpeedHz, unsafe.Pointer(&c.speed))
}

func (c *Conn) Select() { c.selected = true }

func (c *Conn) Deselect() {
	if !c.selected {
		return
	}
	c.selected = false
	c.message(0, false)
}

func (c *Conn) Transfer(b byte) byte {
	c.tx[0] = b
	c.rx[0] = 0xff
	if c.selected {
		c.message(1, true)
		return c.rx[0]
	}
	if c.setMode(c.mode|modeNoCS) != nil {
		return 0xff
	}
	c.message(1, false)
	c.setMode(c.mode)
	return c.rx[0]
}

// message runs one SPI_IOC_MESSAGE(1) of n bytes from tx into rx. keepCS
// leaves chip select asserted after the message.
func (c *Conn) message(n uint32, keepCS bool) {
	xfer := transfer{
		length:      n,
		speedHz:     c.speed,
		bitsPerWord: 8,
	}
	if n > 0 {
		xfer.txBuf = uint64(uintptr(unsafe.Pointer(&c.tx[0])))
		xfer.rxBuf = uint64(uintptr(unsafe.Pointer(&c.rx[0])))
	}
	if keepCS {
		xfer.csChange = 1
	}
	if err := c.ioctl(spiIOCMessage1, unsafe.Pointer(&xfer)); err != nil {
		c.rx[0] = 0xff
	}
}

func (c *Conn) setMode(mode uint8) error {
	return c.ioctl(spiIOCWrMode, unsafe.Pointer(&mode))
}

func (c *Conn) ioctl(req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(arg))
	if errno != 0 {
		if c.err == nil {
			c.err = errno
		}
		return errno
	}
	return nil
}
