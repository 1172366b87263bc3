//go:build tinygo

package sdspi

import (
	"machine"
)

// spiController is satisfied by machine.SPI on every TinyGo target.
type spiController interface {
	Configure(config machine.SPIConfig) error
	Transfer(w byte) (byte, error)
}

// MachineBus is a Transport over a hardware SPI peripheral with a GPIO chip select.
type MachineBus struct {
	SPI spiController
	CS  machine.Pin
	SDO machine.Pin
	SDI machine.Pin
	SCK machine.Pin
	// BaseFrequency is the clock selected by a zero BusConfig.ClockDivisor.
	BaseFrequency uint32
}

var _ Transport = (*MachineBus)(nil)

func (m *MachineBus) Configure(cfg BusConfig) error {
	m.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	m.CS.High()
	base := m.BaseFrequency
	if base == 0 {
		base = 16_000_000
	}
	return m.SPI.Configure(machine.SPIConfig{
		Frequency: cfg.Frequency(base),
		SCK:       m.SCK,
		SDO:       m.SDO,
		SDI:       m.SDI,
		LSBFirst:  cfg.Order == LSBFirst,
		Mode:      cfg.Mode(),
	})
}

func (m *MachineBus) Select()   { m.CS.Low() }
func (m *MachineBus) Deselect() { m.CS.High() }

// Transfer returns 0xff if the peripheral reports an error, which the driver
// sees as a card that did not answer.
func (m *MachineBus) Transfer(b byte) byte {
	got, err := m.SPI.Transfer(b)
	if err != nil {
		return 0xff
	}
	return got
}
