package sensor

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Tag names one supported device type.
type Tag string

const (
	TagPCT2075 Tag = "pct2075"
	TagPH      Tag = "ph"
	TagSHT30   Tag = "sht30"
)

// FailureMarker is written in place of every value of a failed reading.
const FailureMarker = ""

var ErrShortResponse = errors.New("unexpected response length")

// Transactor performs one addressed write-then-read on the bus.
type Transactor interface {
	Transact(addr uint16, w []byte, n int) ([]byte, error)
}

// Column is one output field of a driver.
type Column struct {
	Name   string
	Format string
	Unit   string
}

// Driver describes a device: where it lives on the bus, the command that
// triggers a measurement, the size of the answer and how to convert it.
type Driver struct {
	Tag         Tag
	Description string
	Address     uint16
	Command     []byte
	ResponseLen int
	Columns     []Column
	// Decode converts a response of exactly ResponseLen bytes.
	Decode func(raw []byte) ([]float64, error)
	// Derive converts decoded values into column values. Nil means identity.
	Derive func(vals []float64) []float64
	// PrimeDelay, when non-zero, means every response belongs to the previous
	// conversion: callers must poll once, discard it, wait PrimeDelay and
	// poll again.
	PrimeDelay time.Duration
}

// Poll runs one transaction and decodes the response. The result is never
// partial: a response of the wrong size is an error.
func (d Driver) Poll(tx Transactor) ([]float64, error) {
	raw, err := tx.Transact(d.Address, d.Command, d.ResponseLen)
	if err != nil {
		return nil, err
	}
	if len(raw) != d.ResponseLen {
		return nil, fmt.Errorf("%s: %w: got %d want %d", d.Tag, ErrShortResponse, len(raw), d.ResponseLen)
	}
	return d.Decode(raw)
}

// Values applies Derive to decoded values.
func (d Driver) Values(decoded []float64) []float64 {
	if d.Derive == nil {
		return decoded
	}
	return d.Derive(decoded)
}

func (d Driver) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// Reading is the result of polling one device: either all values or an error.
type Reading struct {
	Tag       Tag
	Channel   int // mux channel, -1 when polled directly
	Columns   []Column
	Values    []float64
	Err       error
	Timestamp time.Time
}

// ColumnKey names a column in a record; columns behind a mux channel get
// the channel as suffix.
func ColumnKey(name string, channel int) string {
	if channel < 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, channel)
}

// Keys returns the record column names of the reading.
func (r Reading) Keys() []string {
	out := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		out[i] = ColumnKey(c.Name, r.Channel)
	}
	return out
}

func (r Reading) OK() bool { return r.Err == nil && len(r.Values) == len(r.Columns) }

// Strings formats every column, or returns failure markers for a failed reading.
func (r Reading) Strings() []string {
	out := make([]string, len(r.Columns))
	if !r.OK() {
		for i := range out {
			out[i] = FailureMarker
		}
		return out
	}
	for i, c := range r.Columns {
		out[i] = fmt.Sprintf(c.Format, r.Values[i])
	}
	return out
}

// Registry maps tags to drivers.
type Registry map[Tag]Driver

func (r Registry) Lookup(tag Tag) (Driver, error) {
	d, ok := r[tag]
	if !ok {
		return Driver{}, fmt.Errorf("unknown sensor %q", tag)
	}
	return d, nil
}

// HeaderFields returns the column names a tag contributes to a record.
func (r Registry) HeaderFields(tag Tag) ([]string, error) {
	d, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	return d.ColumnNames(), nil
}

// Poll reads tag once. Drivers with a PrimeDelay are polled twice: the first
// answer is discarded, sleep waits out the conversion and only the second
// answer is reported. A nil sleep means time.Sleep.
func (r Registry) Poll(tag Tag, tx Transactor, sleep func(time.Duration)) Reading {
	d, err := r.Lookup(tag)
	if err != nil {
		return Reading{Tag: tag, Channel: -1, Err: err}
	}
	rd := Reading{Tag: tag, Channel: -1, Columns: d.Columns, Timestamp: time.Now()}
	if d.PrimeDelay > 0 {
		// the answer belongs to the previous conversion
		if _, err := d.Poll(tx); err != nil {
			rd.Err = fmt.Errorf("prime: %w", err)
			return rd
		}
		if sleep == nil {
			sleep = time.Sleep
		}
		sleep(d.PrimeDelay)
	}
	vals, err := d.Poll(tx)
	if err != nil {
		rd.Err = err
		return rd
	}
	rd.Values = d.Values(vals)
	return rd
}

// WithAddress returns a copy of the registry with tag moved to addr.
func (r Registry) WithAddress(tag Tag, addr uint16) (Registry, error) {
	d, err := r.Lookup(tag)
	if err != nil {
		return nil, err
	}
	out := make(Registry, len(r))
	for k, v := range r {
		out[k] = v
	}
	d.Address = addr
	out[tag] = d
	return out, nil
}

// ParseTag accepts a tag or a device alias.
func ParseTag(s string) (Tag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pct2075", "pct", "temp":
		return TagPCT2075, nil
	case "ph", "pcf8591", "adc":
		return TagPH, nil
	case "sht30", "sht3x", "sht":
		return TagSHT30, nil
	}
	return "", fmt.Errorf("unknown sensor %q", s)
}
