package sdsim

import (
	"errors"
	"io"

	"github.com/soypat/sdspi/sd"
)

// Memory is an in-memory Store.
type Memory struct {
	data []byte
}

// NewMemory returns a zeroed store of the given number of blocks.
func NewMemory(blocks uint32) *Memory {
	return &Memory{data: make([]byte, int(blocks)*sd.BlockSize)}
}

// Bytes returns the backing buffer.
func (m *Memory) Bytes() []byte { return m.data }

// Block returns the contents of block n.
func (m *Memory) Block(n uint32) []byte {
	return m.data[int(n)*sd.BlockSize : int(n+1)*sd.BlockSize]
}

func (m *Memory) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("sdsim: negative offset")
	}
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *Memory) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, errors.New("sdsim: write out of range")
	}
	return copy(m.data[off:], p), nil
}
