package sdsim

import "github.com/soypat/sdspi"

// Exchange is the traffic of one chip select assertion.
type Exchange struct {
	MOSI []byte // Bytes sent by the host.
	MISO []byte // Bytes returned by the card.
}

// Spy wraps a Transport and counts every call made through it.
// Transfers while selected are recorded as Exchanges when Record is set.
type Spy struct {
	Bus       sdspi.Transport
	Record    bool
	Configs   int
	Selects   int
	Deselects int
	Transfers int
	Exchanges []Exchange
	selected  bool
}

var _ sdspi.Transport = (*Spy)(nil)

// Calls returns the total number of bus calls observed.
func (s *Spy) Calls() int { return s.Configs + s.Selects + s.Deselects + s.Transfers }

func (s *Spy) Configure(cfg sdspi.BusConfig) error {
	s.Configs++
	return s.Bus.Configure(cfg)
}

func (s *Spy) Select() {
	s.Selects++
	s.selected = true
	if s.Record {
		s.Exchanges = append(s.Exchanges, Exchange{})
	}
	s.Bus.Select()
}

func (s *Spy) Deselect() {
	s.Deselects++
	s.selected = false
	s.Bus.Deselect()
}

func (s *Spy) Transfer(b byte) byte {
	s.Transfers++
	got := s.Bus.Transfer(b)
	if s.Record && s.selected && len(s.Exchanges) > 0 {
		ex := &s.Exchanges[len(s.Exchanges)-1]
		ex.MOSI = append(ex.MOSI, b)
		ex.MISO = append(ex.MISO, got)
	}
	return got
}
