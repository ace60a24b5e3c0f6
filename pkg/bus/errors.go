package bus

import "fmt"

// OpenError is returned when the bus device cannot be opened. It is fatal at startup.
type OpenError struct {
	Bus string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open i2c bus %q: %v", e.Bus, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// SelectError reports a failure to bind a device address or to switch a mux
// channel. Channel is -1 when no mux channel was involved.
type SelectError struct {
	Addr    uint16
	Channel int
	Err     error
}

func (e *SelectError) Error() string {
	if e.Channel >= 0 {
		return fmt.Sprintf("select mux 0x%02X channel %d: %v", e.Addr, e.Channel, e.Err)
	}
	return fmt.Sprintf("select device 0x%02X: %v", e.Addr, e.Err)
}

func (e *SelectError) Unwrap() error { return e.Err }

// TransactionError reports a failed or short write or read.
type TransactionError struct {
	Addr uint16
	Op   string // "write" or "read"
	Want int
	Got  int
	Err  error
}

func (e *TransactionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s 0x%02X (%d bytes): %v", e.Op, e.Addr, e.Want, e.Err)
	}
	return fmt.Sprintf("short %s 0x%02X: got %d of %d bytes", e.Op, e.Addr, e.Got, e.Want)
}

func (e *TransactionError) Unwrap() error { return e.Err }
