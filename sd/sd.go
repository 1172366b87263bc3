// Package sd defines the SD/MMC card SPI-mode protocol: command indices, command
// framing, response shapes and the data tokens exchanged around block transfers.
// It performs no I/O.
package sd

import (
	"encoding/binary"
	"strconv"
)

// Command is an SD/MMC command index (CMDn or ACMDn). Only the low 6 bits are used.
type Command uint8

// Commands used in SPI mode.
const (
	GO_IDLE_STATE     Command = 0
	SEND_OP_COND      Command = 1 // MMC operating condition negotiation.
	SWITCH_FUNC       Command = 6
	SEND_IF_COND      Command = 8
	SEND_CSD          Command = 9
	SEND_CID          Command = 10
	STOP_TRANSMISSION Command = 12
	SEND_STATUS       Command = 13
	SET_BLOCKLEN      Command = 16
	READ_SINGLE_BLOCK Command = 17
	WRITE_BLOCK       Command = 24
	APP_SEND_OP_COND  Command = 41 // Must be preceded by APP_CMD.
	APP_CMD           Command = 55
	READ_OCR          Command = 58
)

// Response lengths in bytes for each response class.
const (
	R1 = 1
	R2 = 2
	R3 = 5
	R7 = 5
)

const (
	// BlockSize is the only block length this package deals in.
	BlockSize = 512
	// FrameLen is the length of a command frame on the wire.
	FrameLen = 6
	// IDLE is clocked out by the host whenever it only wants to read.
	IDLE byte = 0xff
	// START_BLOCK_TOKEN precedes a data block in both directions.
	START_BLOCK_TOKEN byte = 0xfe

	// IF_COND_ARG requests 2.7-3.6V and carries the 0xaa check pattern.
	IF_COND_ARG uint32 = 0x0000_01aa
	// HCS is set in the APP_SEND_OP_COND argument when the host supports high capacity cards.
	HCS uint32 = 1 << 30
)

// Checksums for the two commands whose CRC is verified before CRC checking can be
// disabled. All other frames carry a don't-care checksum.
const (
	crcGoIdle   = 0x95
	crcIfCond   = 0x87
	crcDontCare = 0xff
)

// Frame returns the 6 byte frame that transmits cmd with argument arg.
func Frame(cmd Command, arg uint32) (frame [FrameLen]byte) {
	frame[0] = 0x40 | byte(cmd&0x3f)
	binary.BigEndian.PutUint32(frame[1:5], arg)
	switch cmd {
	case GO_IDLE_STATE:
		frame[5] = crcGoIdle
	case SEND_IF_COND:
		frame[5] = crcIfCond
	default:
		frame[5] = crcDontCare
	}
	return frame
}

// ParseFrame decodes a command frame. ok is false if b is shorter than a frame or
// its first byte lacks the start and transmission bits.
func ParseFrame(b []byte) (cmd Command, arg uint32, crc byte, ok bool) {
	if len(b) < FrameLen || !IsFrameStart(b[0]) {
		return 0, 0, 0, false
	}
	return Command(b[0] & 0x3f), binary.BigEndian.Uint32(b[1:5]), b[5], true
}

// IsFrameStart reports whether b can be the first byte of a command frame (0b01xxxxxx).
func IsFrameStart(b byte) bool { return b&0xc0 == 0x40 }

func (c Command) String() (s string) {
	switch c {
	case GO_IDLE_STATE:
		s = "GO_IDLE_STATE"
	case SEND_OP_COND:
		s = "SEND_OP_COND"
	case SWITCH_FUNC:
		s = "SWITCH_FUNC"
	case SEND_IF_COND:
		s = "SEND_IF_COND"
	case SEND_CSD:
		s = "SEND_CSD"
	case SEND_CID:
		s = "SEND_CID"
	case STOP_TRANSMISSION:
		s = "STOP_TRANSMISSION"
	case SEND_STATUS:
		s = "SEND_STATUS"
	case SET_BLOCKLEN:
		s = "SET_BLOCKLEN"
	case READ_SINGLE_BLOCK:
		s = "READ_SINGLE_BLOCK"
	case WRITE_BLOCK:
		s = "WRITE_BLOCK"
	case APP_SEND_OP_COND:
		s = "APP_SEND_OP_COND"
	case APP_CMD:
		s = "APP_CMD"
	case READ_OCR:
		s = "READ_OCR"
	default:
		s = "CMD" + strconv.Itoa(int(c))
	}
	return s
}
