package poll

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ericogr/i2c-env-logger/pkg/bus"
	"github.com/ericogr/i2c-env-logger/pkg/sensor"
)

// DefaultOrder is the polling and column order without a mux.
var DefaultOrder = []sensor.Tag{sensor.TagPCT2075, sensor.TagPH, sensor.TagSHT30}

// MuxConfig describes one sensor type wired behind several mux channels.
type MuxConfig struct {
	Address  uint16
	Channels []int
	Sensor   sensor.Tag
}

type Config struct {
	Sensors []sensor.Tag
	// Mux, when set, replaces Sensors: only the mux sensor is polled, once
	// per channel.
	Mux *MuxConfig
}

// Record is the outcome of one cycle. Columns and Values always have the
// same length and order as Cycle.Header.
type Record struct {
	Timestamp time.Time
	Columns   []string
	Values    []string
	Readings  []sensor.Reading
}

type step struct {
	driver  sensor.Driver
	channel int
}

// Cycle polls a fixed plan of sensors. It is not safe for concurrent use;
// it owns the bus for the duration of Run.
type Cycle struct {
	h     *bus.Handle
	mux   *bus.Mux
	reg   sensor.Registry
	steps []step

	// Sleep blocks between the throwaway and the real poll of primed drivers.
	Sleep func(time.Duration)
	Now   func() time.Time
}

func New(h *bus.Handle, cfg Config, reg sensor.Registry) (*Cycle, error) {
	c := &Cycle{h: h, reg: reg, Sleep: time.Sleep, Now: time.Now}
	if cfg.Mux != nil {
		if len(cfg.Mux.Channels) == 0 {
			return nil, errors.New("mux configured without channels")
		}
		d, err := reg.Lookup(cfg.Mux.Sensor)
		if err != nil {
			return nil, fmt.Errorf("mux sensor: %w", err)
		}
		seen := map[int]bool{}
		for _, ch := range cfg.Mux.Channels {
			if ch < 0 || ch >= bus.MuxChannels {
				return nil, fmt.Errorf("mux channel %d out of range 0..%d", ch, bus.MuxChannels-1)
			}
			if seen[ch] {
				return nil, fmt.Errorf("mux channel %d listed twice", ch)
			}
			seen[ch] = true
			c.steps = append(c.steps, step{driver: d, channel: ch})
		}
		c.mux = bus.NewMux(h, cfg.Mux.Address)
		return c, nil
	}
	if len(cfg.Sensors) == 0 {
		return nil, errors.New("no sensors configured")
	}
	for _, tag := range cfg.Sensors {
		d, err := reg.Lookup(tag)
		if err != nil {
			return nil, err
		}
		c.steps = append(c.steps, step{driver: d, channel: -1})
	}
	return c, nil
}

// Header returns the record column names in polling order.
func (c *Cycle) Header() []string {
	var out []string
	for _, s := range c.steps {
		// steps only hold tags New resolved against c.reg
		fields, _ := c.reg.HeaderFields(s.driver.Tag)
		for _, name := range fields {
			out = append(out, sensor.ColumnKey(name, s.channel))
		}
	}
	return out
}

// Units maps every header column to its unit of measurement.
func (c *Cycle) Units() map[string]string {
	out := map[string]string{}
	for _, s := range c.steps {
		for _, col := range s.driver.Columns {
			out[sensor.ColumnKey(col.Name, s.channel)] = col.Unit
		}
	}
	return out
}

// Run polls every step once. A failing sensor contributes failure markers
// and never stops the cycle.
func (c *Cycle) Run() Record {
	rec := Record{Timestamp: c.Now()}
	for _, s := range c.steps {
		rd := c.poll(s)
		if rd.Err != nil {
			log.Printf("poll %s: %v", describe(s), rd.Err)
		}
		rec.Columns = append(rec.Columns, rd.Keys()...)
		rec.Values = append(rec.Values, rd.Strings()...)
		rec.Readings = append(rec.Readings, rd)
	}
	return rec
}

// poll runs one step. Selecting a channel and polling the device behind it
// happen back to back with no other bus traffic in between.
func (c *Cycle) poll(s step) sensor.Reading {
	if s.channel >= 0 {
		if err := c.mux.SelectChannel(s.channel); err != nil {
			return sensor.Reading{Tag: s.driver.Tag, Channel: s.channel, Columns: s.driver.Columns, Err: err, Timestamp: c.Now()}
		}
	}
	rd := c.reg.Poll(s.driver.Tag, c.h, c.Sleep)
	rd.Channel = s.channel
	rd.Timestamp = c.Now()
	return rd
}

func describe(s step) string {
	if s.channel < 0 {
		return fmt.Sprintf("%s (%s)", s.driver.Tag, s.driver.Description)
	}
	return fmt.Sprintf("%s (%s) on mux channel %d", s.driver.Tag, s.driver.Description, s.channel)
}
