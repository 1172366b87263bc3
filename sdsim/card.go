// Package sdsim simulates an SD or MMC card answering SPI mode commands. A Card
// implements sdspi.Transport so drivers can be exercised without hardware.
package sdsim

import (
	"encoding/binary"
	"io"

	"github.com/soypat/sdspi"
	"github.com/soypat/sdspi/sd"
)

// Kind selects the card family to simulate.
type Kind uint8

const (
	SDHC Kind = iota // High capacity, block addressed.
	SDv2             // Standard capacity, answers SEND_IF_COND.
	SDv1             // Standard capacity, rejects SEND_IF_COND.
	MMC              // Rejects APP_CMD, negotiates with SEND_OP_COND.
)

func (k Kind) String() string {
	switch k {
	case SDHC:
		return "sdhc"
	case SDv2:
		return "sdv2"
	case SDv1:
		return "sdv1"
	case MMC:
		return "mmc"
	}
	return "unknown"
}

// Store backs the blocks of a Card. *os.File and *Memory satisfy it.
type Store interface {
	io.ReaderAt
	io.WriterAt
}

type cardMode uint8

const (
	modeCommand cardMode = iota
	modeWriteToken
	modeWriteData
)

// Card is a simulated card. Exported fields configure its behaviour and may be
// changed between transactions.
type Card struct {
	// IdlePolls is the number of operating condition commands answered with
	// the idle bit set before the card becomes ready.
	IdlePolls int
	// NeverReady keeps the card in the idle state forever.
	NeverReady bool
	// Mute makes the card never drive the data out line.
	Mute bool
	// ResponseDelay is the number of idle bytes before every R1 response.
	ResponseDelay int
	// TokenDelay is the number of idle bytes between a read R1 and the data token.
	TokenDelay int
	// BusyBytes is the number of busy bytes after a written block. Negative
	// keeps the card busy forever.
	BusyBytes int
	// ErrorTokens maps blocks to the data error token sent instead of their data.
	ErrorTokens map[uint32]byte
	// WriteStatus maps blocks to the data response status answered to writes.
	// Blocks answered with other than sd.DATA_ACCEPTED are not stored.
	WriteStatus map[uint32]uint8
	// PowerUpPending keeps the OCR power up bit clear after the card leaves idle.
	PowerUpPending bool
	// RejectBlockLen answers SET_BLOCKLEN with a parameter error.
	RejectBlockLen bool
	// IfCondEcho, when non-zero, replaces the check pattern echoed to SEND_IF_COND.
	IfCondEcho byte

	kind     Kind
	store    Store
	blocks   uint32
	selected bool
	idle     bool
	ready    bool
	appCmd   bool
	opPolls  int
	mode     cardMode
	cmdbuf   [sd.FrameLen]byte
	ncmd     int
	out      []byte
	busy     int
	wblock   uint32
	wbuf     [sd.BlockSize + 2]byte
	nw       int
	counts   [64]int
	lastArgs [64]uint32
	configs  []sdspi.BusConfig
}

var _ sdspi.Transport = (*Card)(nil)

// NewCard returns a powered down card of the given kind with blocks blocks stored in store.
func NewCard(kind Kind, store Store, blocks uint32) *Card {
	return &Card{
		IdlePolls:     2,
		ResponseDelay: 1,
		TokenDelay:    2,
		BusyBytes:     4,
		kind:          kind,
		store:         store,
		blocks:        blocks,
		idle:          true,
	}
}

// Kind returns the simulated card family.
func (c *Card) Kind() Kind { return c.kind }

// Blocks returns the card capacity in blocks.
func (c *Card) Blocks() uint32 { return c.blocks }

// Count returns how many times cmd was received.
func (c *Card) Count(cmd sd.Command) int { return c.counts[cmd&0x3f] }

// LastArg returns the argument of the last cmd received.
func (c *Card) LastArg(cmd sd.Command) uint32 { return c.lastArgs[cmd&0x3f] }

// Configs returns every bus configuration requested so far.
func (c *Card) Configs() []sdspi.BusConfig { return c.configs }

func (c *Card) Configure(cfg sdspi.BusConfig) error {
	c.configs = append(c.configs, cfg)
	return nil
}

func (c *Card) Select() { c.selected = true }

// Deselect aborts any partially received command or data packet. A card busy
// programming a block stays busy.
func (c *Card) Deselect() {
	c.selected = false
	c.out = c.out[:0]
	c.ncmd = 0
	c.mode = modeCommand
}

func (c *Card) Transfer(b byte) byte {
	if !c.selected {
		return sd.IDLE
	}
	out := c.next()
	if c.Mute {
		return sd.IDLE
	}
	c.receive(b)
	return out
}

func (c *Card) next() byte {
	switch {
	case len(c.out) > 0:
		b := c.out[0]
		c.out = c.out[1:]
		return b
	case c.busy != 0:
		if c.busy > 0 {
			c.busy--
		}
		return 0
	}
	return sd.IDLE
}

func (c *Card) receive(b byte) {
	switch c.mode {
	case modeWriteToken:
		if b == sd.START_BLOCK_TOKEN {
			c.mode = modeWriteData
			c.nw = 0
		}
	case modeWriteData:
		c.wbuf[c.nw] = b
		c.nw++
		if c.nw == len(c.wbuf) {
			c.mode = modeCommand
			c.commitWrite()
		}
	default:
		if c.ncmd == 0 && !sd.IsFrameStart(b) {
			return
		}
		c.cmdbuf[c.ncmd] = b
		c.ncmd++
		if c.ncmd == sd.FrameLen {
			c.ncmd = 0
			cmd, arg, _, _ := sd.ParseFrame(c.cmdbuf[:])
			c.exec(cmd, arg)
		}
	}
}

func (c *Card) exec(cmd sd.Command, arg uint32) {
	c.counts[cmd]++
	c.lastArgs[cmd] = arg
	app := c.appCmd
	c.appCmd = false
	var r1 sd.R1Status
	if c.idle {
		r1 = sd.R1_IDLE
	}
	switch {
	case cmd == sd.GO_IDLE_STATE:
		c.idle = true
		c.ready = false
		c.opPolls = 0
		c.respond(byte(sd.R1_IDLE))

	case cmd == sd.SEND_IF_COND:
		if c.kind == SDv1 || c.kind == MMC {
			c.respond(byte(r1 | sd.R1_ILLEGAL_CMD))
			return
		}
		echo := byte(arg)
		if c.IfCondEcho != 0 {
			echo = c.IfCondEcho
		}
		c.respond(byte(r1), 0, 0, byte(arg>>8)&0x0f, echo)

	case cmd == sd.APP_CMD:
		if c.kind == MMC {
			c.respond(byte(r1 | sd.R1_ILLEGAL_CMD))
			return
		}
		c.appCmd = true
		c.respond(byte(r1))

	case cmd == sd.APP_SEND_OP_COND && app:
		c.opCond(arg)

	case cmd == sd.SEND_OP_COND:
		c.opCond(0)

	case cmd == sd.READ_OCR:
		var ocr [4]byte
		binary.BigEndian.PutUint32(ocr[:], uint32(c.ocr()))
		c.respond(byte(r1), ocr[0], ocr[1], ocr[2], ocr[3])

	case cmd == sd.SET_BLOCKLEN:
		if arg != sd.BlockSize || c.RejectBlockLen {
			r1 |= sd.R1_PARAMETER_ERR
		}
		c.respond(byte(r1))

	case cmd == sd.READ_SINGLE_BLOCK:
		block, r1 := c.address(arg, r1)
		if r1 != 0 {
			c.respond(byte(r1))
			return
		}
		c.respond(0)
		c.sendBlock(block)

	case cmd == sd.WRITE_BLOCK:
		block, r1 := c.address(arg, r1)
		c.respond(byte(r1))
		if r1 == 0 {
			c.wblock = block
			c.mode = modeWriteToken
		}

	default:
		c.respond(byte(r1 | sd.R1_ILLEGAL_CMD))
	}
}

func (c *Card) opCond(arg uint32) {
	c.opPolls++
	hcsMissing := c.kind == SDHC && arg&sd.HCS == 0
	if !c.NeverReady && !hcsMissing && c.opPolls > c.IdlePolls {
		c.idle = false
		c.ready = true
	}
	if c.idle {
		c.respond(byte(sd.R1_IDLE))
	} else {
		c.respond(0)
	}
}

func (c *Card) ocr() sd.OCR {
	ocr := sd.OCR_VDD_27_36
	if c.ready && !c.PowerUpPending {
		ocr |= sd.OCR_POWERUP
		if c.kind == SDHC {
			ocr |= sd.OCR_CCS
		}
	}
	return ocr
}

// address converts a command argument to a block number.
func (c *Card) address(arg uint32, r1 sd.R1Status) (block uint32, _ sd.R1Status) {
	if !c.ready {
		return 0, r1 | sd.R1_ILLEGAL_CMD
	}
	if c.kind == SDHC {
		return arg, r1
	}
	if arg%sd.BlockSize != 0 {
		return 0, r1 | sd.R1_ADDRESS_ERROR
	}
	return arg / sd.BlockSize, r1
}

func (c *Card) sendBlock(block uint32) {
	c.delay(c.TokenDelay)
	if tok, ok := c.ErrorTokens[block]; ok {
		c.out = append(c.out, tok)
		return
	}
	if block >= c.blocks {
		c.out = append(c.out, 0x08) // Out of range error token.
		return
	}
	var buf [sd.BlockSize]byte
	_, err := c.store.ReadAt(buf[:], int64(block)*sd.BlockSize)
	if err != nil && err != io.EOF {
		c.out = append(c.out, 0x01)
		return
	}
	c.out = append(c.out, sd.START_BLOCK_TOKEN)
	c.out = append(c.out, buf[:]...)
	c.out = append(c.out, 0, 0) // CRC, unused in SPI mode.
}

func (c *Card) commitWrite() {
	status, injected := c.WriteStatus[c.wblock]
	if !injected {
		status = sd.DATA_ACCEPTED
	}
	if status == sd.DATA_ACCEPTED {
		if c.wblock >= c.blocks {
			status = sd.DATA_WRITE_ERROR
		} else if _, err := c.store.WriteAt(c.wbuf[:sd.BlockSize], int64(c.wblock)*sd.BlockSize); err != nil {
			status = sd.DATA_WRITE_ERROR
		}
	}
	c.out = append(c.out, byte(sd.MakeDataResponse(status)))
	if status == sd.DATA_ACCEPTED {
		c.busy = c.BusyBytes
	}
}

func (c *Card) respond(resp ...byte) {
	c.delay(c.ResponseDelay)
	c.out = append(c.out, resp...)
}

func (c *Card) delay(n int) {
	for i := 0; i < n; i++ {
		c.out = append(c.out, sd.IDLE)
	}
}
