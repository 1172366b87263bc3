package sdspi_test

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/soypat/sdspi"
	"github.com/soypat/sdspi/sd"
	"github.com/soypat/sdspi/sdsim"
)

const testBlocks = 64

func newTestDevice(t *testing.T, kind sdsim.Kind, cfg sdspi.Config) (*sdspi.Device, *sdsim.Card, *sdsim.Memory) {
	t.Helper()
	mem := sdsim.NewMemory(testBlocks)
	card := sdsim.NewCard(kind, mem, testBlocks)
	if testing.Verbose() && cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return sdspi.New(card, cfg), card, mem
}

func pattern(sectors int, seed byte) []byte {
	buf := make([]byte, sectors*sdspi.SectorSize)
	for i := range buf {
		buf[i] = seed + byte(i) + byte(i/sdspi.SectorSize)
	}
	return buf
}

func TestInitCardKinds(t *testing.T) {
	var tests = []struct {
		kind     sdsim.Kind
		want     sdspi.CardKind
		mult     uint32
		blockLen int
	}{
		{sdsim.SDHC, sdspi.CardSDHC, 1, 0},
		{sdsim.SDv2, sdspi.CardSDv2, 512, 1},
		{sdsim.SDv1, sdspi.CardSDv1, 512, 1},
		{sdsim.MMC, sdspi.CardMMC, 512, 1},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			dev, card, _ := newTestDevice(t, tt.kind, sdspi.Config{})
			if err := dev.Init(); err != nil {
				t.Fatal(err)
			}
			if !dev.Initialized() {
				t.Fatal("device not initialized after successful Init")
			}
			if got := dev.CardKind(); got != tt.want {
				t.Errorf("card kind %s, want %s", got, tt.want)
			}
			if got := dev.AddressMultiplier(); got != tt.mult {
				t.Errorf("address multiplier %d, want %d", got, tt.mult)
			}
			if got := card.Count(sd.SET_BLOCKLEN); got != tt.blockLen {
				t.Errorf("SET_BLOCKLEN sent %d times, want %d", got, tt.blockLen)
			}
			if !dev.OCR().PowerUpComplete() {
				t.Error("OCR power up bit not set")
			}
			configs := card.Configs()
			if len(configs) != 2 || configs[0] != sdspi.SlowBus || configs[1] != sdspi.FastBus {
				t.Errorf("bus configurations %+v, want slow then fast", configs)
			}
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	dev, _, mem := newTestDevice(t, sdsim.SDv2, sdspi.Config{})
	for i := 0; i < 2; i++ {
		if err := dev.Init(); err != nil {
			t.Fatalf("Init #%d: %v", i+1, err)
		}
		if dev.AddressMultiplier() != 512 || dev.SectorSize() != 512 {
			t.Fatalf("Init #%d: multiplier=%d sector size=%d", i+1, dev.AddressMultiplier(), dev.SectorSize())
		}
	}
	want := pattern(1, 3)
	copy(mem.Block(7), want)
	got := make([]byte, len(want))
	if _, err := dev.ReadBlocks(got, 7); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, want) {
		t.Error("data mismatch after repeated Init")
	}
}

func TestInitNeverReady(t *testing.T) {
	dev, card, _ := newTestDevice(t, sdsim.SDHC, sdspi.Config{})
	card.NeverReady = true
	err := dev.Init()
	if !errors.Is(err, sdspi.ErrNoInit) {
		t.Fatalf("want ErrNoInit, got %v", err)
	}
	if got := card.Count(sd.APP_SEND_OP_COND); got != 1024 {
		t.Errorf("APP_SEND_OP_COND sent %d times, want exactly 1024", got)
	}
	if dev.Initialized() {
		t.Error("device reports initialized after failed negotiation")
	}
	if card.Count(sd.READ_OCR) != 0 {
		t.Error("negotiation continued past failed operating condition loop")
	}
}

func TestInitOpCondBudget(t *testing.T) {
	dev, card, _ := newTestDevice(t, sdsim.SDv2, sdspi.Config{OpCondAttempts: 5})
	card.IdlePolls = 5
	if err := dev.Init(); err == nil {
		t.Fatal("expected failure: card needs 6 polls")
	}
	card.IdlePolls = 4
	if err := dev.Init(); err != nil {
		t.Fatalf("card ready on 5th poll: %v", err)
	}
}

func TestInitMute(t *testing.T) {
	dev, card, _ := newTestDevice(t, sdsim.SDHC, sdspi.Config{})
	card.Mute = true
	if err := dev.Init(); !errors.Is(err, sdspi.ErrNoInit) {
		t.Fatalf("want ErrNoInit, got %v", err)
	}
	if card.Count(sd.SEND_IF_COND) != 0 {
		t.Error("negotiation continued after reset got no response")
	}
}

func TestReadErrorTokenPartial(t *testing.T) {
	dev, card, mem := newTestDevice(t, sdsim.SDHC, sdspi.Config{})
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	data := pattern(4, 9)
	copy(mem.Bytes()[10*512:], data)
	card.ErrorTokens = map[uint32]byte{12: 0x04}

	buf := bytes.Repeat([]byte{0xee}, 4*512)
	n, err := dev.ReadBlocks(buf, 10)
	if n != 2 {
		t.Errorf("read %d sectors before failure, want 2", n)
	}
	if !errors.Is(err, sdspi.ErrBadToken) {
		t.Fatalf("want ErrBadToken, got %v", err)
	}
	var terr *sdspi.TransferError
	if !errors.As(err, &terr) || terr.Sector != 12 || terr.Completed != 2 || terr.Token != 0x04 || terr.Op != "read" {
		t.Fatalf("unexpected transfer error %+v", terr)
	}
	if !bytes.Equal(buf[:2*512], data[:2*512]) {
		t.Error("sectors before the failing one not populated")
	}
	if !bytes.Equal(buf[2*512:], bytes.Repeat([]byte{0xee}, 2*512)) {
		t.Error("sectors from the failing one onward were modified")
	}
}

func TestReadNotReady(t *testing.T) {
	dev, card, _ := newTestDevice(t, sdsim.SDHC, sdspi.Config{})
	if err := dev.Init(); err != nil {
		t.Fatal(err)
	}
	card.Mute = true
	n, err := dev.ReadBlocks(make([]byte, 512), 0)
	if n != 0 || !errors.Is(err, sdspi.ErrNotReady) {
		t.Fatalf("n=%d err=%v, want ErrNotReady", n, err)
	}
	if sdspi.ResultOf(err) != sdspi.ResNotReady {
		t.Errorf("result %s", sdspi.ResultOf(err))
	}
}

func TestReadOutOfRange(t *testing.T) {
	dev, _, _ := newTestDevice(t, sdsim.SDHC, sdspi.Config{})
	_, err := dev.ReadBlocks(make([]byte, 512), testBlocks)
	if !errors.Is(err, sdspi.ErrBadToken) {
		t.Fatalf("want ErrBadToken for out of range sector, got %v", err)
	}
}

func TestBufferSize(t *testing.T) {
	dev, _, _ := newTestDevice(t, sdsim.SDHC, sdspi.Config{})
	if _, err := dev.ReadBlocks(make([]byte, 100), 0); !errors.Is(err, sdspi.ErrBufferSize) {
		t.Errorf("want ErrBufferSize, got %v", err)
	}
	if dev.Initialized() {
		t.Error("bad buffer triggered initialization")
	}
}

func TestInitNegotiationFaults(t *testing.T) {
	var tests = []struct {
		name     string
		kind     sdsim.Kind
		inject   func(*sdsim.Card)
		wantErr  bool
		wantKind sdspi.CardKind
		wantMult uint32
	}{
		{
			name:    "power-up-pending",
			kind:    sdsim.SDHC,
			inject:  func(c *sdsim.Card) { c.PowerUpPending = true },
			wantErr: true,
		},
		{
			name:    "blocklen-rejected",
			kind:    sdsim.SDv2,
			inject:  func(c *sdsim.Card) { c.RejectBlockLen = true },
			wantErr: true,
		},
		{
			name:     "if-cond-echo-mismatch",
			kind:     sdsim.SDv2,
			inject:   func(c *sdsim.Card) { c.IfCondEcho = 0x55 },
			wantKind: sdspi.CardSDv1,
			wantMult: 512,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev, card, _ := newTestDevice(t, tt.kind, sdspi.Config{})
			tt.inject(card)
			err := dev.Init()
			if tt.wantErr {
				if !errors.Is(err, sdspi.ErrNoInit) {
					t.Fatalf("want ErrNoInit, got %v", err)
				}
				if dev.Initialized() {
					t.Error("device initialized after failed negotiation")
				}
				if len(card.Configs()) != 1 {
					t.Error("bus switched to full speed after failed negotiation")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got := dev.CardKind(); got != tt.wantKind {
				t.Errorf("card kind %s, want %s", got, tt.wantKind)
			}
			if got := dev.AddressMultiplier(); got != tt.wantMult {
				t.Errorf("address multiplier %d, want %d", got, tt.wantMult)
			}
			if card.LastArg(sd.APP_SEND_OP_COND)&sd.HCS != 0 {
				t.Error("HCS sent to a card that failed the interface condition check")
			}
		})
	}
}

func TestReadUnaddressableRange(t *testing.T) {
	var tests = []struct {
		kind  sdsim.Kind
		start uint32
		count int
	}{
		{sdsim.SDv2, 1 << 23, 1},
		{sdsim.SDv2, 1<<23 - 1, 2},
		{sdsim.SDHC, 1<<32 - 1, 2},
	}
	for _, tt := range tests {
		dev, card, _ := newTestDevice(t, tt.kind, sdspi.Config{})
		if err := dev.Init(); err != nil {
			t.Fatal(err)
		}
		n, err := dev.ReadBlocks(make([]byte, tt.count*512), tt.start)
		if n != 0 || !errors.Is(err, sdspi.ErrOutOfRange) {
			t.Errorf("%s start=%d count=%d: n=%d err=%v, want ErrOutOfRange", tt.kind, tt.start, tt.count, n, err)
		}
		if card.Count(sd.READ_SINGLE_BLOCK) != 0 {
			t.Errorf("%s: read command sent for unaddressable sector", tt.kind)
		}
		if sdspi.ResultOf(err) != sdspi.ResParamError {
			t.Errorf("result %s, want param-error", sdspi.ResultOf(err))
		}
	}
}
