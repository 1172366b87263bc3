package sd

import (
	"encoding/binary"
	"strings"
)

// R1Status is the first byte of every command response.
type R1Status uint8

const (
	R1_IDLE          R1Status = 1 << 0
	R1_ERASE_RESET   R1Status = 1 << 1
	R1_ILLEGAL_CMD   R1Status = 1 << 2
	R1_CRC_ERROR     R1Status = 1 << 3
	R1_ERASE_SEQ_ERR R1Status = 1 << 4
	R1_ADDRESS_ERROR R1Status = 1 << 5
	R1_PARAMETER_ERR R1Status = 1 << 6
	R1_NO_RESPONSE   R1Status = 1 << 7 // Card has not driven the line yet.
	r1ErrorMask               = R1_ERASE_RESET | R1_ILLEGAL_CMD | R1_CRC_ERROR | R1_ERASE_SEQ_ERR | R1_ADDRESS_ERROR | R1_PARAMETER_ERR
)

// IsResponse reports whether b is a response byte, that is, its high bit is clear.
func IsResponse(b byte) bool { return b&0x80 == 0 }

func (r R1Status) Idle() bool           { return r&R1_IDLE != 0 }
func (r R1Status) IllegalCommand() bool { return r&R1_ILLEGAL_CMD != 0 }
func (r R1Status) Pending() bool        { return r&R1_NO_RESPONSE != 0 }

// Ok reports whether the card answered with all error bits clear. The idle bit is ignored.
func (r R1Status) Ok() bool { return !r.Pending() && r&r1ErrorMask == 0 }

func (r R1Status) String() string {
	if r.Pending() {
		return "no-response"
	}
	if r == 0 {
		return "ready"
	}
	var names = [...]string{"idle", "erase-reset", "illegal-cmd", "crc-error", "erase-seq", "address-error", "param-error"}
	var sb strings.Builder
	for i, name := range names {
		if r&(1<<i) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(name)
	}
	return sb.String()
}

// OCR is the 32 bit operating condition register returned by READ_OCR.
type OCR uint32

const (
	OCR_VDD_27_36 OCR = 0x00ff_8000 // 2.7-3.6V window.
	OCR_CCS       OCR = 1 << 30     // Card capacity status: block addressed.
	OCR_POWERUP   OCR = 1 << 31     // Power up routine finished.
)

// DecodeOCR reads the OCR from the 4 bytes following the R1 in an R3 response.
func DecodeOCR(b []byte) OCR { return OCR(binary.BigEndian.Uint32(b)) }

func (o OCR) PowerUpComplete() bool { return o&OCR_POWERUP != 0 }

// HighCapacity reports whether the card uses block addressing (SDHC/SDXC).
func (o OCR) HighCapacity() bool { return o&OCR_CCS != 0 }

// IsReadToken reports whether b ends the wait for a read data block: either
// START_BLOCK_TOKEN or a data error token.
func IsReadToken(b byte) bool { return b == START_BLOCK_TOKEN || IsErrorToken(b) }

// IsErrorToken reports whether b is a data error token sent in place of a data block.
func IsErrorToken(b byte) bool { return b > 0 && b <= 8 }

// DataResponse is the token a card sends after receiving a written block.
// Format is xxx0sss1 where sss is the status.
type DataResponse uint8

const (
	DATA_ACCEPTED    = 2
	DATA_CRC_ERROR   = 5
	DATA_WRITE_ERROR = 6
)

// IsDataResponse reports whether b has the data response token bit pattern.
func IsDataResponse(b byte) bool { return b&0x11 == 0x01 }

// MakeDataResponse returns the token that encodes status.
func MakeDataResponse(status uint8) DataResponse { return DataResponse(0x01 | (status&7)<<1) }

func (d DataResponse) Status() uint8  { return uint8(d>>1) & 7 }
func (d DataResponse) Accepted() bool { return d.Status() == DATA_ACCEPTED }

func (d DataResponse) String() string {
	switch d.Status() {
	case DATA_ACCEPTED:
		return "accepted"
	case DATA_CRC_ERROR:
		return "crc-error"
	case DATA_WRITE_ERROR:
		return "write-error"
	}
	return "unknown"
}
