package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/soypat/sdspi"
	"github.com/soypat/sdspi/sd"
	"github.com/soypat/sdspi/sdsim"
)

func TestDecodeErrorToken(t *testing.T) {
	card := sdsim.NewCard(sdsim.SDHC, sdsim.NewMemory(8), 8)
	card.ErrorTokens = map[uint32]byte{2: 0x04}
	spy := &sdsim.Spy{Bus: card}
	dev := sdspi.New(spy, sdspi.Config{})
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	spy.Record = true
	dev.ReadBlocks(make([]byte, sd.BlockSize), 2)
	if len(spy.Exchanges) != 1 {
		t.Fatalf("recorded %d exchanges", len(spy.Exchanges))
	}
	ex := spy.Exchanges[0]
	txs := decode(exchange{MOSI: ex.MOSI, MISO: ex.MISO})
	if len(txs) != 1 || txs[0].Data != "error-token=0x04" {
		t.Fatalf("decoded %+v", txs)
	}
	if !txs[0].ok() {
		t.Errorf("read command rejected: r1=%s", txs[0].R1)
	}
}

func TestDecodeNoResponse(t *testing.T) {
	frame := sd.Frame(sd.GO_IDLE_STATE, 0)
	mosi := append(frame[:], bytes.Repeat([]byte{sd.IDLE}, 8)...)
	miso := bytes.Repeat([]byte{sd.IDLE}, len(mosi))
	txs := decode(exchange{MOSI: mosi, MISO: miso})
	if len(txs) != 1 || !txs[0].R1.Pending() || txs[0].ok() {
		t.Fatalf("decoded %+v", txs)
	}
}

func TestCollapse(t *testing.T) {
	card := sdsim.NewCard(sdsim.MMC, sdsim.NewMemory(1), 1)
	card.IdlePolls = 5
	spy := &sdsim.Spy{Bus: card, Record: true}
	if err := sdspi.New(spy, sdspi.Config{}).Init(); err != nil {
		t.Fatal(err)
	}
	var exchanges []exchange
	for _, ex := range spy.Exchanges {
		exchanges = append(exchanges, exchange{MOSI: ex.MOSI, MISO: ex.MISO})
	}
	var buf strings.Builder
	opts := Options{Collapse: true}
	if err := opts.print(&buf, decodeAll(exchanges)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "cmd×5    SEND_OP_COND") {
		t.Errorf("idle op cond polls not collapsed:\n%s", out)
	}
}
