//go:build tinygo

package sdspi

import (
	"device"
	"errors"
	"machine"
)

// SPIbb is a dumb bit-bang implementation of SPI mode 0, MSB first, with its
// own chip select pin. It implements Transport.
type SPIbb struct {
	SCK machine.Pin
	SDI machine.Pin
	SDO machine.Pin
	CS  machine.Pin
	// Delay is a quarter of the clock period in nop loops. Configure sets it
	// from the requested clock divisor.
	Delay uint32
	// configured is set after the pins have been configured.
	configured bool
}

var _ Transport = (*SPIbb)(nil)

// Configure sets up SCK, SDO and CS as outputs, with SCK low and CS high, and
// sets the clock delay from cfg.ClockDivisor.
func (s *SPIbb) Configure(cfg BusConfig) error {
	if cfg.Mode() != 0 || cfg.Order != MSBFirst {
		return errors.New("SPIbb: only mode 0 MSB first supported")
	}
	if !s.configured {
		s.SCK.Configure(machine.PinConfig{Mode: machine.PinOutput})
		s.SDO.Configure(machine.PinConfig{Mode: machine.PinOutput})
		s.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
		s.SDI.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		s.SCK.Low()
		s.SDO.High()
		s.CS.High()
		s.configured = true
	}
	s.Delay = uint32(cfg.ClockDivisor)
	if s.Delay == 0 {
		s.Delay = 1
	}
	return nil
}

func (s *SPIbb) Select()   { s.CS.Low() }
func (s *SPIbb) Deselect() { s.CS.High() }

// Transfer sends b and returns the byte clocked in at the same time.
func (s *SPIbb) Transfer(b byte) byte {
	return s.transfer(b)
}

//go:inline
func (s *SPIbb) transfer(b byte) (out byte) {
	out |= b2u8(s.bitTransfer(b&(1<<7) != 0)) << 7
	out |= b2u8(s.bitTransfer(b&(1<<6) != 0)) << 6
	out |= b2u8(s.bitTransfer(b&(1<<5) != 0)) << 5
	out |= b2u8(s.bitTransfer(b&(1<<4) != 0)) << 4
	out |= b2u8(s.bitTransfer(b&(1<<3) != 0)) << 3
	out |= b2u8(s.bitTransfer(b&(1<<2) != 0)) << 2
	out |= b2u8(s.bitTransfer(b&(1<<1) != 0)) << 1
	out |= b2u8(s.bitTransfer(b&1 != 0))
	return out
}

// bitTransfer puts the bit on SDO before the rising edge and samples SDI on it.
//
//go:inline
func (s *SPIbb) bitTransfer(b bool) bool {
	s.SDO.Set(b)
	s.delay()
	s.SCK.High()
	s.delay()
	inputBit := s.SDI.Get()
	s.delay()
	s.SCK.Low()
	s.delay()
	return inputBit
}

// delay represents a quarter of the clock cycle
//
//go:inline
func (s *SPIbb) delay() {
	for i := uint32(0); i < s.Delay; i++ {
		device.Asm("nop")
	}
}

//go:inline
func b2u8(b bool) byte {
	if b {
		return 1
	}
	return 0
}
