package main

import "github.com/soypat/sdspi/spidev"

func openSPIDev(path string, baseHz uint32) (*spidev.Conn, error) {
	return spidev.Open(path, baseHz)
}
