package sdspi

import (
	"log/slog"

	"github.com/soypat/sdspi/sd"
)

// CardKind is the card family detected during negotiation.
type CardKind uint8

const (
	CardUnknown CardKind = iota
	CardMMC
	CardSDv1 // SD version 1.x, did not answer SEND_IF_COND.
	CardSDv2 // SD version 2.0+ standard capacity, byte addressed.
	CardSDHC // SDHC/SDXC, block addressed.
)

func (k CardKind) String() string {
	switch k {
	case CardMMC:
		return "MMC"
	case CardSDv1:
		return "SDv1"
	case CardSDv2:
		return "SDv2"
	case CardSDHC:
		return "SDHC"
	}
	return "unknown"
}

// Config tunes negotiation and the attempt budgets of every bounded poll.
// Zero fields take the value from DefaultConfig.
type Config struct {
	Logger *slog.Logger
	// SlowBus is used during negotiation, FastBus once the card is ready.
	SlowBus BusConfig
	FastBus BusConfig
	// InitIdleBytes is the number of bytes clocked with the card deselected before reset.
	InitIdleBytes int
	// ResponseAttempts bounds the wait for the first response byte of a command.
	ResponseAttempts int
	// TokenAttempts bounds the wait for a data start token or a data response token.
	TokenAttempts int
	// OpCondAttempts bounds the operating condition negotiation loop.
	OpCondAttempts int
	// BusyAttempts bounds the wait for the card to finish programming a written block.
	BusyAttempts int
}

// DefaultConfig returns the attempt budgets used by SD cards in the wild.
func DefaultConfig() Config {
	return Config{
		SlowBus:          SlowBus,
		FastBus:          FastBus,
		InitIdleBytes:    100,
		ResponseAttempts: 8,
		TokenAttempts:    1024,
		OpCondAttempts:   1024,
		BusyAttempts:     1 << 16,
	}
}

func (cfg *Config) setDefaults() {
	def := DefaultConfig()
	if cfg.SlowBus == (BusConfig{}) {
		cfg.SlowBus = def.SlowBus
	}
	if cfg.FastBus == (BusConfig{}) {
		cfg.FastBus = def.FastBus
	}
	if cfg.InitIdleBytes <= 0 {
		cfg.InitIdleBytes = def.InitIdleBytes
	}
	if cfg.ResponseAttempts <= 0 {
		cfg.ResponseAttempts = def.ResponseAttempts
	}
	if cfg.TokenAttempts <= 0 {
		cfg.TokenAttempts = def.TokenAttempts
	}
	if cfg.OpCondAttempts <= 0 {
		cfg.OpCondAttempts = def.OpCondAttempts
	}
	if cfg.BusyAttempts <= 0 {
		cfg.BusyAttempts = def.BusyAttempts
	}
}

// Device is a single SD/MMC card on a Transport.
type Device struct {
	bus          Transport
	cfg          Config
	logger       *slog.Logger
	traceEnabled bool
	state        initState
	kind         CardKind
	ocr          sd.OCR
	// addrMult converts a sector number to a command argument: 1 for block
	// addressed cards, SectorSize for byte addressed cards.
	addrMult uint32
	// resp holds the response of the last transaction.
	resp [sd.R7]byte
}

// New returns an uninitialized Device on bus. Call Init before transferring sectors.
func New(bus Transport, cfg Config) *Device {
	cfg.setDefaults()
	d := &Device{
		bus:    bus,
		cfg:    cfg,
		logger: cfg.Logger,
	}
	d.traceEnabled = d.logenabled(levelTrace)
	return d
}

// Initialized reports whether the last negotiation succeeded.
func (d *Device) Initialized() bool { return d.state == stateReady }

// CardKind returns the card family found by the last successful negotiation.
func (d *Device) CardKind() CardKind { return d.kind }

// OCR returns the operating condition register read during negotiation.
func (d *Device) OCR() sd.OCR { return d.ocr }

// AddressMultiplier returns the factor that converts a sector number into a
// command address: 1 for block addressed cards and SectorSize for byte addressed ones.
// It is zero before the first successful Init.
func (d *Device) AddressMultiplier() uint32 { return d.addrMult }

// SectorSize returns the sector size in bytes, which is always 512.
func (d *Device) SectorSize() int { return SectorSize }

func (d *Device) sectorAddr(sector uint32) uint32 { return sector * d.addrMult }

// checkRange reports ErrOutOfRange if any of the count sectors from start has
// a command address that does not fit in 32 bits.
func (d *Device) checkRange(start uint32, count int) error {
	if (uint64(start)+uint64(count))*uint64(d.addrMult) > 1<<32 {
		return ErrOutOfRange
	}
	return nil
}
