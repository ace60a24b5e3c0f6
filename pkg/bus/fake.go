package bus

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// FakeDevice is a scripted device on a FakeBus.
type FakeDevice struct {
	// Responses are served one per read, in order; the last one repeats.
	Responses [][]byte
	// Generate, when set, produces every read response instead of Responses.
	Generate func() []byte
	WriteErr error
	ReadErr  error

	// Writes records every payload written to the device.
	Writes [][]byte
	reads  int
}

func (d *FakeDevice) next() []byte {
	if d.Generate != nil {
		return d.Generate()
	}
	if len(d.Responses) == 0 {
		return nil
	}
	i := d.reads
	if i >= len(d.Responses) {
		i = len(d.Responses) - 1
	}
	d.reads++
	return d.Responses[i]
}

// FakeMux emulates a channel multiplexer: devices in Channels are only
// reachable while their channel is selected.
type FakeMux struct {
	Addr     uint16
	WriteErr error
	// FailChannels makes selection of the listed channels fail.
	FailChannels map[int]error
	Channels     map[int]map[uint16]*FakeDevice

	selected int
}

// FakeBus implements i2c.BusCloser on top of scripted devices. It is used
// for the simulation sensor type and in tests.
type FakeBus struct {
	mu      sync.Mutex
	Devices map[uint16]*FakeDevice
	Mux     *FakeMux
	Speed   physic.Frequency
	closed  bool
}

func NewFakeBus() *FakeBus {
	return &FakeBus{Devices: map[uint16]*FakeDevice{}}
}

// AddMux attaches a mux at addr with no channel selected.
func (b *FakeBus) AddMux(addr uint16) *FakeMux {
	b.Mux = &FakeMux{Addr: addr, Channels: map[int]map[uint16]*FakeDevice{}, selected: -1}
	return b.Mux
}

// Attach places d behind channel ch of the mux.
func (m *FakeMux) Attach(ch int, addr uint16, d *FakeDevice) {
	if m.Channels[ch] == nil {
		m.Channels[ch] = map[uint16]*FakeDevice{}
	}
	m.Channels[ch][addr] = d
}

func (m *FakeMux) Selected() int { return m.selected }

func (b *FakeBus) String() string { return "fake-i2c" }

func (b *FakeBus) SetSpeed(f physic.Frequency) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Speed = f
	return nil
}

func (b *FakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *FakeBus) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("fake-i2c: closed")
	}
	if b.Mux != nil && addr == b.Mux.Addr {
		return b.Mux.tx(w, r)
	}
	d := b.lookup(addr)
	if d == nil {
		return fmt.Errorf("fake-i2c: no device at 0x%02X", addr)
	}
	if len(w) > 0 {
		if d.WriteErr != nil {
			return d.WriteErr
		}
		d.Writes = append(d.Writes, append([]byte(nil), w...))
	}
	if len(r) > 0 {
		if d.ReadErr != nil {
			return d.ReadErr
		}
		resp := d.next()
		n := copy(r, resp)
		if n < len(r) {
			return fmt.Errorf("fake-i2c: read %d of %d bytes: %w", n, len(r), io.ErrUnexpectedEOF)
		}
	}
	return nil
}

func (b *FakeBus) lookup(addr uint16) *FakeDevice {
	if b.Mux != nil && b.Mux.selected >= 0 {
		if d, ok := b.Mux.Channels[b.Mux.selected][addr]; ok {
			return d
		}
	}
	return b.Devices[addr]
}

func (m *FakeMux) tx(w, r []byte) error {
	if len(r) > 0 {
		return fmt.Errorf("fake-i2c: mux read unsupported")
	}
	if len(w) != 1 {
		return fmt.Errorf("fake-i2c: mux expects 1 byte, got %d", len(w))
	}
	if m.WriteErr != nil {
		return m.WriteErr
	}
	ch := -1
	for i := 0; i < MuxChannels; i++ {
		if w[0] == 1<<i {
			ch = i
			break
		}
	}
	if err, ok := m.FailChannels[ch]; ok {
		m.selected = -1
		return err
	}
	m.selected = ch
	return nil
}
