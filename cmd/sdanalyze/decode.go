package main

import (
	"fmt"
	"strings"

	"github.com/soypat/sdspi/sd"
)

// exchange is the traffic of one chip select assertion.
type exchange struct {
	MOSI  []byte
	MISO  []byte
	Start float64
}

// sdtx is a decoded command with its response and data phase.
type sdtx struct {
	Num   int
	Cmd   sd.Command
	Arg   uint32
	CRC   byte
	R1    sd.R1Status
	Tail  []byte
	Data  string
	Start float64
}

func (tx *sdtx) ok() bool { return tx.R1 == 0 || tx.R1 == sd.R1_IDLE }

func (tx *sdtx) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "cmd×%-4d %-17s arg=%#08x crc=%#02x r1=%s", tx.Num, tx.Cmd.String(), tx.Arg, tx.CRC, tx.R1.String())
	if len(tx.Tail) > 0 {
		fmt.Fprintf(&sb, " resp=%x", tx.Tail)
	}
	if tx.Data != "" {
		sb.WriteString(" ")
		sb.WriteString(tx.Data)
	}
	return sb.String()
}

func decodeAll(exchanges []exchange) (txs []sdtx) {
	for _, ex := range exchanges {
		txs = append(txs, decode(ex)...)
	}
	return txs
}

// decode finds every command frame sent by the host during ex and decodes the
// card's answer to it.
func decode(ex exchange) (txs []sdtx) {
	mosi, miso := ex.MOSI, ex.MISO
	n := min(len(mosi), len(miso))
	for i := 0; i+sd.FrameLen <= n; {
		cmd, arg, crc, ok := sd.ParseFrame(mosi[i:])
		if !ok {
			i++
			continue
		}
		tx := sdtx{Num: 1, Cmd: cmd, Arg: arg, CRC: crc, R1: sd.R1_NO_RESPONSE, Start: ex.Start}
		i += sd.FrameLen
		// First response byte arrives within 8 bytes of the frame.
		for j := 0; j < 8 && i < n; j++ {
			b := miso[i]
			i++
			if sd.IsResponse(b) {
				tx.R1 = sd.R1Status(b)
				break
			}
		}
		if !tx.R1.Pending() {
			if tail := responseTail(cmd); tail > 0 && i+tail <= n {
				tx.Tail = append([]byte(nil), miso[i:i+tail]...)
				i += tail
			}
			switch {
			case cmd == sd.READ_SINGLE_BLOCK && tx.R1 == 0:
				tx.Data, i = decodeRead(miso, i, n)
			case cmd == sd.WRITE_BLOCK && tx.R1 == 0:
				tx.Data, i = decodeWrite(mosi, miso, i, n)
			}
		}
		txs = append(txs, tx)
	}
	return txs
}

func responseTail(cmd sd.Command) int {
	switch cmd {
	case sd.SEND_IF_COND, sd.READ_OCR:
		return sd.R7 - 1
	case sd.SEND_STATUS:
		return sd.R2 - 1
	}
	return 0
}

func decodeRead(miso []byte, i, n int) (string, int) {
	for ; i < n; i++ {
		b := miso[i]
		if !sd.IsReadToken(b) {
			continue
		}
		if b != sd.START_BLOCK_TOKEN {
			return fmt.Sprintf("error-token=%#02x", b), i + 1
		}
		got := min(n-i-1, sd.BlockSize)
		return fmt.Sprintf("data=%d/%d", got, sd.BlockSize), i + 1 + got
	}
	return "no-token", i
}

func decodeWrite(mosi, miso []byte, i, n int) (string, int) {
	for ; i < n && mosi[i] != sd.START_BLOCK_TOKEN; i++ {
	}
	if i >= n {
		return "no-token", i
	}
	i += 1 + sd.BlockSize
	for ; i < n; i++ {
		if !sd.IsDataResponse(miso[i]) {
			continue
		}
		resp := sd.DataResponse(miso[i])
		busy := 0
		for i++; i < n && miso[i] == 0; i++ {
			busy++
		}
		return fmt.Sprintf("data-response=%s busy=%d", resp.String(), busy), i
	}
	return "no-data-response", i
}

// collapse merges runs of identical transactions.
func collapse(txs []sdtx) (out []sdtx) {
	for i := 0; i < len(txs); i++ {
		tx := txs[i]
		for j := i + 1; j < len(txs); j++ {
			next := txs[j]
			if next.Cmd != tx.Cmd || next.Arg != tx.Arg || next.R1 != tx.R1 || next.Data != tx.Data || string(next.Tail) != string(tx.Tail) {
				break
			}
			tx.Num++
			i = j
		}
		out = append(out, tx)
	}
	return out
}
