package sdspi

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/soypat/sdspi/sd"
)

func TestPoll(t *testing.T) {
	calls := 0
	seq := []byte{0xff, 0xff, 0x01, 0x00}
	next := func() byte {
		b := seq[calls%len(seq)]
		calls++
		return b
	}
	got, ok := poll(8, next, isZero)
	if !ok || got != 0 || calls != 4 {
		t.Errorf("poll stopped at %#x ok=%v after %d calls", got, ok, calls)
	}

	calls = 0
	got, ok = poll(uint16(3), next, isZero)
	if ok || calls != 3 || got != 0x01 {
		t.Errorf("exhausted poll: got %#x ok=%v calls=%d", got, ok, calls)
	}

	calls = 0
	if _, ok = poll(0, next, isZero); ok || calls != 0 {
		t.Errorf("zero budget poll called next %d times", calls)
	}
}

func TestResultOf(t *testing.T) {
	var tests = []struct {
		err  error
		want Result
	}{
		{nil, ResOK},
		{ErrNoDisk, ResParamError},
		{ErrBufferSize, ResParamError},
		{errors.Join(ErrNoInit, errOpCond), ResNotReady},
		{&TransferError{Op: "read", Err: ErrNotReady}, ResNotReady},
		{&TransferError{Op: "write", Err: ErrBusyTimeout}, ResNotReady},
		{&TransferError{Op: "read", Err: ErrBadToken}, ResError},
		{&TransferError{Op: "write", Err: ErrWriteRejected}, ResError},
		{&TransferError{Op: "write", Err: ErrWriteCRC}, ResError},
	}
	for _, tt := range tests {
		if got := ResultOf(tt.err); got != tt.want {
			t.Errorf("ResultOf(%v)=%s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestTransferErrorMessage(t *testing.T) {
	err := &TransferError{Op: "read", Sector: 12, Completed: 2, Token: 0x04, Err: ErrBadToken}
	msg := err.Error()
	for _, want := range []string{"unexpected token", "read sector 12", "after 2 sectors", "0x4"} {
		if !strings.Contains(msg, want) {
			t.Errorf("%q missing %q", msg, want)
		}
	}
}

func TestBusConfig(t *testing.T) {
	if got := SlowBus.Frequency(16_000_000); got != 126984 {
		t.Errorf("slow bus frequency %d", got)
	}
	if got := FastBus.Frequency(16_000_000); got != 16_000_000 {
		t.Errorf("fast bus frequency %d", got)
	}
	if got := (BusConfig{Polarity: 1, Phase: 1}).Mode(); got != 3 {
		t.Errorf("mode %d", got)
	}
}

func TestInitStateString(t *testing.T) {
	seen := map[string]bool{}
	for s := stateUnconfigured; s <= stateFailed; s++ {
		str := s.String()
		if str == "invalid" || seen[str] {
			t.Errorf("state %d has bad or duplicate name %q", s, str)
		}
		seen[str] = true
	}
}

func TestPIOClock(t *testing.T) {
	const cpu = 125_000_000
	if got := pioClock(SlowBus, cpu); got != 496028 {
		t.Errorf("slow bus state machine clock %d", got)
	}
	if got := pioClock(FastBus, cpu); got != 62_500_000 {
		t.Errorf("fast bus state machine clock %d", got)
	}
	// Both presets scale by the same cycles per bit.
	if pioClock(SlowBus, cpu) != SlowBus.Frequency(cpu/8)*pioCyclesPerBit {
		t.Error("slow bus not scaled by cycles per bit")
	}
	if !SlowBus.sameFraming(FastBus) {
		t.Error("slow and fast bus differ in framing")
	}
	if SlowBus.sameFraming(BusConfig{Order: LSBFirst}) || SlowBus.sameFraming(BusConfig{Polarity: 1}) {
		t.Error("framing change not detected")
	}
}

// zeroBus answers every byte with zero, a ready R1.
type zeroBus struct{}

func (zeroBus) Configure(BusConfig) error { return nil }
func (zeroBus) Select()                   {}
func (zeroBus) Deselect()                 {}
func (zeroBus) Transfer(byte) byte        { return 0 }

func TestTransactionTrace(t *testing.T) {
	for _, level := range []slog.Level{levelTrace, slog.LevelDebug} {
		var buf bytes.Buffer
		d := New(zeroBus{}, Config{Logger: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: level}))})
		if r1 := d.command(sd.SEND_STATUS, 0); r1 != 0 {
			t.Fatalf("r1=%s", r1)
		}
		traced := strings.Contains(buf.String(), "msg=transaction")
		if traced != (level == levelTrace) {
			t.Errorf("level %s: traced=%t\n%s", level, traced, buf.String())
		}
	}
}
