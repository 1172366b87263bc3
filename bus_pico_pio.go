//go:build pico

package sdspi

import (
	"errors"
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
	"github.com/tinygo-org/pio/rp2-pio/piolib"
)

// PIOBus is a Transport over an RP2040 PIO state machine running an SPI
// program, with a GPIO chip select.
type PIOBus struct {
	spi *piolib.SPI
	sm  pio.StateMachine
	cs  machine.Pin
	cfg machine.SPIConfig
	// framing holds the mode and bit order loaded with the program.
	framing BusConfig
}

var errPIOReconfig = errors.New("PIOBus: mode and bit order fixed after first Configure")

var _ Transport = (*PIOBus)(nil)

// NewPIOBus claims a state machine on PIO0 for an SD card wired to the given pins.
// The bus is not usable until Configure is called.
func NewPIOBus(sck, sdo, sdi, cs machine.Pin) (*PIOBus, error) {
	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		return nil, err
	}
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	return &PIOBus{
		sm:  sm,
		cs:  cs,
		cfg: machine.SPIConfig{SCK: sck, SDO: sdo, SDI: sdi},
	}, nil
}

// Configure loads the SPI program on first use. Every call sets the state
// machine clock divider for the requested bus frequency.
func (p *PIOBus) Configure(cfg BusConfig) error {
	cpu := machine.CPUFrequency()
	if p.spi == nil {
		spicfg := p.cfg
		spicfg.Frequency = cfg.Frequency(cpu / 8)
		spicfg.Mode = cfg.Mode()
		spicfg.LSBFirst = cfg.Order == LSBFirst
		spi, err := piolib.NewSPI(p.sm, spicfg)
		if err != nil {
			return err
		}
		p.spi = spi
		p.framing = cfg
	} else if !cfg.sameFraming(p.framing) {
		return errPIOReconfig
	}
	whole, frac, err := pio.ClkDivFromFrequency(pioClock(cfg, cpu), cpu)
	if err != nil {
		return err
	}
	p.sm.SetClkDiv(whole, frac)
	return nil
}

func (p *PIOBus) Select()   { p.cs.Low() }
func (p *PIOBus) Deselect() { p.cs.High() }

func (p *PIOBus) Transfer(b byte) byte {
	var w, r [1]byte
	w[0] = b
	if err := p.spi.Tx(w[:], r[:]); err != nil {
		return 0xff
	}
	return r[0]
}
