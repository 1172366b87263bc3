package sdspi

// piolib's SPI program spends 4 state machine cycles per bit.
const pioCyclesPerBit = 4

// pioClock returns the PIO state machine clock that shifts bits at the rate
// cfg requests from a controller whose base clock is cpuHz/8.
func pioClock(cfg BusConfig, cpuHz uint32) uint32 {
	return cfg.Frequency(cpuHz/8) * pioCyclesPerBit
}

// sameFraming reports whether c and o shift bits onto the wire the same way.
func (c BusConfig) sameFraming(o BusConfig) bool {
	return c.Mode() == o.Mode() && c.Order == o.Order
}
