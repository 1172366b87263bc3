package sdspi

import (
	"github.com/soypat/sdspi/sd"
	"golang.org/x/exp/constraints"
)

// poll calls next up to attempts times and stops at the first value accepted by done.
// It returns the last value obtained and whether it was accepted. If attempts
// is not positive next is never called and ok is false.
func poll[N constraints.Integer, T any](attempts N, next func() T, done func(T) bool) (last T, ok bool) {
	for i := N(0); i < attempts; i++ {
		last = next()
		if done(last) {
			return last, true
		}
	}
	return last, false
}

// idle clocks out an idle byte and returns the byte read back.
func (d *Device) idle() byte { return d.bus.Transfer(sd.IDLE) }

// idles clocks out n idle bytes discarding what is read back.
func (d *Device) idles(n int) {
	for i := 0; i < n; i++ {
		d.bus.Transfer(sd.IDLE)
	}
}

func isZero(b byte) bool  { return b == 0 }
func notBusy(b byte) bool { return b == sd.IDLE }

func sectorCount(buflen int) (n int, ok bool) {
	return buflen / SectorSize, buflen%SectorSize == 0
}
