//go:build !linux

package main

import (
	"errors"

	"github.com/soypat/sdspi"
)

type spiConn interface {
	sdspi.Transport
	Close() error
}

func openSPIDev(path string, baseHz uint32) (spiConn, error) {
	return nil, errors.New("spidev is only available on linux")
}
