package sdspi

import (
	"log/slog"

	"github.com/soypat/sdspi/sd"
)

// selectCard asserts the card's chip select and returns the function that
// releases it. The release also clocks one idle byte with the card deselected,
// which the card needs to let go of its data out line.
//
//	defer d.selectCard()()
func (d *Device) selectCard() (release func()) {
	d.bus.Select()
	return d.deselectCard
}

func (d *Device) deselectCard() {
	d.bus.Deselect()
	d.bus.Transfer(sd.IDLE)
}

// sendCommand clocks out the frame of cmd. The card must be selected.
func (d *Device) sendCommand(cmd sd.Command, arg uint32) {
	frame := sd.Frame(cmd, arg)
	for _, b := range frame {
		d.bus.Transfer(b)
	}
}

// transaction runs a complete command/response exchange and returns the
// response, rlen bytes long. If the card never answers the first byte of the
// response has its high bit set and callers' checks on it fail.
func (d *Device) transaction(cmd sd.Command, arg uint32, rlen int) []byte {
	resp := d.resp[:rlen]
	defer d.selectCard()()
	d.sendCommand(cmd, arg)
	// Only the first byte is gated by the card being ready, the tail follows immediately.
	resp[0], _ = poll(d.cfg.ResponseAttempts, d.idle, sd.IsResponse)
	for i := 1; i < rlen; i++ {
		resp[i] = d.idle()
	}
	if d.traceEnabled {
		d.trace("transaction", slog.String("cmd", cmd.String()), slog.Uint64("arg", uint64(arg)), slog.Any("resp", resp))
	}
	return resp
}

// command runs a transaction expecting an R1 response.
func (d *Device) command(cmd sd.Command, arg uint32) sd.R1Status {
	return sd.R1Status(d.transaction(cmd, arg, sd.R1)[0])
}
