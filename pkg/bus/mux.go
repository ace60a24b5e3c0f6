package bus

import (
	"errors"
	"fmt"
)

const (
	// DefaultMuxAddress is the TCA9548A address with all address jumpers open.
	DefaultMuxAddress = 0x70
	// MuxChannels is the number of downstream ports on the mux.
	MuxChannels = 8
)

// Mux switches one downstream channel of an I2C multiplexer onto the bus.
// A selection persists until another channel is selected.
type Mux struct {
	h        *Handle
	addr     uint16
	selected int
}

func NewMux(h *Handle, addr uint16) *Mux {
	return &Mux{h: h, addr: addr, selected: -1}
}

// SelectChannel makes ch the only active downstream channel. On error the
// previous selection must be treated as undefined.
func (m *Mux) SelectChannel(ch int) error {
	if ch < 0 || ch >= MuxChannels {
		return &SelectError{Addr: m.addr, Channel: ch, Err: fmt.Errorf("channel out of range 0..%d", MuxChannels-1)}
	}
	m.selected = -1
	if _, err := m.h.Transact(m.addr, []byte{1 << ch}, 0); err != nil {
		var se *SelectError
		if errors.As(err, &se) {
			err = se.Err
		}
		return &SelectError{Addr: m.addr, Channel: ch, Err: err}
	}
	m.selected = ch
	return nil
}

// Selected returns the last successfully selected channel, or -1.
func (m *Mux) Selected() int { return m.selected }
