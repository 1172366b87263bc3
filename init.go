package sdspi

import (
	"errors"
	"log/slog"

	"github.com/soypat/sdspi/sd"
)

// initState tracks card negotiation progress.
type initState uint8

const (
	stateUnconfigured initState = iota
	stateBusSlow
	stateReset
	stateInterfaceProbed
	stateNegotiating
	stateBlockLengthFixed
	stateReady
	stateFailed
)

func (s initState) String() string {
	switch s {
	case stateUnconfigured:
		return "unconfigured"
	case stateBusSlow:
		return "bus-slow"
	case stateReset:
		return "reset"
	case stateInterfaceProbed:
		return "interface-probed"
	case stateNegotiating:
		return "negotiating"
	case stateBlockLengthFixed:
		return "blocklen-fixed"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	}
	return "invalid"
}

// opCondCommand distinguishes SD from MMC operating condition negotiation.
type opCondCommand uint8

const (
	opCondSD  opCondCommand = iota // APP_CMD + APP_SEND_OP_COND.
	opCondMMC                      // SEND_OP_COND.
)

var (
	errBusConfig   = errors.New("bus configuration failed")
	errNoIdle      = errors.New("card did not enter idle state")
	errOpCond      = errors.New("card did not leave idle state")
	errPowerUp     = errors.New("card power up not complete")
	errSetBlockLen = errors.New("set block length rejected")
)

// Init negotiates with the card: reset, interface condition probe, operating
// condition negotiation, capacity detection and block length fix up. On success
// the bus is switched to full speed and the device becomes ready. On failure
// the device is left uninitialized and the returned error wraps ErrNoInit.
//
// Init may be called again at any time to renegotiate.
func (d *Device) Init() (err error) {
	d.info("Init:start")
	err = d.init()
	if err != nil {
		d.setState(stateFailed)
		d.logerr("Init:failed", slog.String("err", err.Error()))
		return errors.Join(ErrNoInit, err)
	}
	d.info("Init:done", slog.String("card", d.kind.String()), slog.Uint64("addrmult", uint64(d.addrMult)), slog.Uint64("ocr", uint64(d.ocr)))
	return nil
}

func (d *Device) init() error {
	d.setState(stateUnconfigured)
	if err := d.bus.Configure(d.cfg.SlowBus); err != nil {
		return errors.Join(errBusConfig, err)
	}
	d.setState(stateBusSlow)

	// Power up settling: card needs at least 74 clocks with chip select high.
	d.idles(d.cfg.InitIdleBytes)
	r1 := d.command(sd.GO_IDLE_STATE, 0)
	if !r1.Idle() || r1.Pending() {
		d.warn("Init:reset", slog.String("r1", r1.String()))
		return errNoIdle
	}
	d.setState(stateReset)

	resp := d.transaction(sd.SEND_IF_COND, sd.IF_COND_ARG, sd.R7)
	// A card that rejects SEND_IF_COND is a version 1 SD card or an MMC.
	v2 := !sd.R1Status(resp[0]).IllegalCommand() && !sd.R1Status(resp[0]).Pending() &&
		resp[3]&0x0f == byte(sd.IF_COND_ARG>>8) && resp[4] == byte(sd.IF_COND_ARG&0xff)
	d.debug("Init:if-cond", slog.Bool("v2", v2), slog.Any("resp", resp))
	d.setState(stateInterfaceProbed)

	d.setState(stateNegotiating)
	variant, err := d.negotiateOpCond(v2)
	if err != nil {
		return err
	}

	resp = d.transaction(sd.READ_OCR, 0, sd.R3)
	ocr := sd.DecodeOCR(resp[1:5])
	if !ocr.PowerUpComplete() {
		d.warn("Init:ocr", slog.Uint64("ocr", uint64(ocr)))
		return errPowerUp
	}
	var addrMult uint32 = 1
	if !ocr.HighCapacity() {
		addrMult = SectorSize
		r1 = d.command(sd.SET_BLOCKLEN, SectorSize)
		if r1 != 0 {
			d.warn("Init:blocklen", slog.String("r1", r1.String()))
			return errSetBlockLen
		}
	}
	d.setState(stateBlockLengthFixed)

	if err := d.bus.Configure(d.cfg.FastBus); err != nil {
		return errors.Join(errBusConfig, err)
	}
	d.ocr = ocr
	d.addrMult = addrMult
	d.kind = cardKind(variant, v2, ocr)
	d.setState(stateReady)
	return nil
}

// negotiateOpCond polls the card with operating condition commands until it
// leaves the idle state. Cards that reject APP_CMD are MMC and are negotiated
// with SEND_OP_COND from then on.
func (d *Device) negotiateOpCond(highCapacity bool) (variant opCondCommand, err error) {
	var arg uint32
	if highCapacity {
		arg = sd.HCS
	}
	attempts := 0
	r1, ok := poll(d.cfg.OpCondAttempts, func() sd.R1Status {
		attempts++
		if variant == opCondMMC {
			return d.command(sd.SEND_OP_COND, 0)
		}
		prefix := d.command(sd.APP_CMD, 0)
		r1 := d.command(sd.APP_SEND_OP_COND, arg)
		if prefix.IllegalCommand() || r1.IllegalCommand() {
			d.debug("Init:mmc-detected", slog.String("r1", prefix.String()))
			variant = opCondMMC
		}
		return r1
	}, func(r1 sd.R1Status) bool {
		return !r1.Idle() && !r1.Pending()
	})
	if !ok {
		d.warn("Init:op-cond", slog.Int("attempts", attempts), slog.String("r1", r1.String()))
		return variant, errOpCond
	}
	d.debug("Init:op-cond", slog.Int("attempts", attempts))
	return variant, nil
}

func cardKind(variant opCondCommand, v2 bool, ocr sd.OCR) CardKind {
	switch {
	case variant == opCondMMC:
		return CardMMC
	case ocr.HighCapacity():
		return CardSDHC
	case v2:
		return CardSDv2
	}
	return CardSDv1
}

func (d *Device) setState(s initState) {
	if d.state != s {
		d.debug("Init:state", slog.String("from", d.state.String()), slog.String("to", s.String()))
	}
	d.state = s
}
