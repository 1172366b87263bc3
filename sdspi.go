// Package sdspi drives an SD or MMC card over a byte oriented SPI transport and
// exposes it as a block device of fixed 512 byte sectors.
//
// The driver is synchronous: every call runs to completion on the caller's
// goroutine, busy polling the card with bounded attempt budgets. A Device is not
// safe for concurrent use; callers must serialize access.
package sdspi

import "github.com/soypat/sdspi/sd"

// SectorSize is the size of every sector read or written through this package.
const SectorSize = sd.BlockSize

// Transport is the SPI bus the card sits on. Select and Deselect drive the card's
// chip select line and must wait for the bus to be idle before and after
// toggling it. Transfer clocks one byte out and returns the byte clocked in,
// blocking until the transfer completes.
type Transport interface {
	Configure(BusConfig) error
	Select()
	Deselect()
	Transfer(b byte) byte
}

// BitOrder is the order in which bits of a byte are shifted onto the bus.
type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// BusConfig holds the parameters the driver requests from the SPI controller.
type BusConfig struct {
	// Slaves is the number of chip select lines the controller should manage.
	Slaves uint8
	Order  BitOrder
	// Polarity and Phase select the SPI mode, CPOL and CPHA respectively.
	Polarity uint8
	Phase    uint8
	// ClockDivisor divides the controller's base clock. The SPI clock is
	// base/(2*ClockDivisor), 0 selects the base clock.
	ClockDivisor uint8
}

// Mode returns the SPI mode number 0-3.
func (c BusConfig) Mode() uint8 { return (c.Polarity&1)<<1 | c.Phase&1 }

// Frequency returns the resulting SPI clock frequency for a controller running at base Hz.
func (c BusConfig) Frequency(base uint32) uint32 {
	if c.ClockDivisor == 0 {
		return base
	}
	return base / (2 * uint32(c.ClockDivisor))
}

// Cards will not answer reliably above 400kHz until negotiation completes.
var (
	SlowBus = BusConfig{Slaves: 2, Order: MSBFirst, ClockDivisor: 63}
	FastBus = BusConfig{Slaves: 2, Order: MSBFirst, ClockDivisor: 0}
)
