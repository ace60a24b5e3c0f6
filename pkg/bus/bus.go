package bus

import (
	"errors"
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// MaxAddress is the highest valid 7-bit device address.
const MaxAddress = 0x7F

var errClosed = errors.New("bus handle closed")

// Handle owns one open I2C bus. Transactions are sequential: the bus is
// shared by every device and a handle must not be used from more than one
// goroutine at a time.
type Handle struct {
	name string
	bus  i2c.Bus
	dev  *i2c.Dev
}

// Open initializes the host drivers and opens the named bus ("1" -> /dev/i2c-1).
func Open(name string) (*Handle, error) {
	if _, err := host.Init(); err != nil {
		return nil, &OpenError{Bus: name, Err: fmt.Errorf("host init: %w", err)}
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, &OpenError{Bus: name, Err: err}
	}
	return New(name, b), nil
}

// New wraps an already opened bus.
func New(name string, b i2c.Bus) *Handle {
	return &Handle{name: name, bus: b}
}

func (h *Handle) String() string { return h.name }

// Select binds addr to the handle. Every following Write and Read targets it
// until the next Select. Nothing is sent on the bus, so an absent device is
// only reported by the next Write or Read as a TransactionError.
func (h *Handle) Select(addr uint16) error {
	if h.bus == nil {
		return &SelectError{Addr: addr, Channel: -1, Err: errClosed}
	}
	if addr > MaxAddress {
		return &SelectError{Addr: addr, Channel: -1, Err: fmt.Errorf("address out of 7-bit range")}
	}
	h.dev = &i2c.Dev{Addr: addr, Bus: h.bus}
	return nil
}

// Write sends w to the bound device. An empty w is a no-op.
func (h *Handle) Write(w []byte) error {
	if len(w) == 0 {
		return nil
	}
	if h.dev == nil {
		return &SelectError{Channel: -1, Err: errors.New("no device selected")}
	}
	n, err := h.dev.Write(w)
	if err != nil {
		return &TransactionError{Addr: h.dev.Addr, Op: "write", Want: len(w), Got: n, Err: err}
	}
	if n != len(w) {
		return &TransactionError{Addr: h.dev.Addr, Op: "write", Want: len(w), Got: n}
	}
	return nil
}

// Read reads exactly n bytes from the bound device. n must be positive.
func (h *Handle) Read(n int) ([]byte, error) {
	if h.dev == nil {
		return nil, &SelectError{Channel: -1, Err: errors.New("no device selected")}
	}
	if n <= 0 {
		return nil, &TransactionError{Addr: h.dev.Addr, Op: "read", Want: n, Err: errors.New("read length must be positive")}
	}
	buf := make([]byte, n)
	if err := h.dev.Tx(nil, buf); err != nil {
		return nil, &TransactionError{Addr: h.dev.Addr, Op: "read", Want: n, Err: err}
	}
	return buf, nil
}

// Transact selects addr, writes w and, when n > 0, reads n bytes back. The
// write and the read are separate bus transactions.
func (h *Handle) Transact(addr uint16, w []byte, n int) ([]byte, error) {
	if err := h.Select(addr); err != nil {
		return nil, err
	}
	if err := h.Write(w); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	return h.Read(n)
}

// SetSpeed changes the bus clock.
func (h *Handle) SetSpeed(f physic.Frequency) error {
	if h.bus == nil {
		return errClosed
	}
	return h.bus.SetSpeed(f)
}

func (h *Handle) Close() error {
	b := h.bus
	h.bus = nil
	h.dev = nil
	if c, ok := b.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
