package sensor

import (
	"math/rand"

	"github.com/ericogr/i2c-env-logger/pkg/bus"
)

// SimulatedMux places a sensor behind a range of mux channels on a
// simulated bus.
type SimulatedMux struct {
	Addr     uint16
	Channels []int
	Tag      Tag
}

// NewSimulatedBus builds a fake bus answering like the devices in reg, with
// values that drift randomly around room conditions.
func NewSimulatedBus(reg Registry, mux *SimulatedMux) *bus.FakeBus {
	fb := bus.NewFakeBus()
	for tag, d := range reg {
		fb.Devices[d.Address] = simulatedDevice(tag)
	}
	if mux != nil {
		fm := fb.AddMux(mux.Addr)
		if d, ok := reg[mux.Tag]; ok {
			for _, ch := range mux.Channels {
				fm.Attach(ch, d.Address, simulatedDevice(mux.Tag))
			}
		}
	}
	return fb
}

func simulatedDevice(tag Tag) *bus.FakeDevice {
	switch tag {
	case TagSHT30:
		return &bus.FakeDevice{Generate: func() []byte {
			// 18..26 °C and 35..60 %RH
			t := uint16((18 + rand.Float64()*8 + 45) * 65536 / 175)
			h := uint16((35 + rand.Float64()*25) * 65536 / 100)
			return []byte{byte(t >> 8), byte(t), 0, byte(h >> 8), byte(h), 0}
		}}
	case TagPCT2075:
		return &bus.FakeDevice{Generate: func() []byte {
			v := uint16((18 + rand.Float64()*8) * 256)
			return []byte{byte(v >> 8), byte(v)}
		}}
	case TagPH:
		return &bus.FakeDevice{Generate: func() []byte {
			// around pH 7
			return []byte{byte(0x8A + rand.Intn(9) - 4), 0, 0, 0}
		}}
	}
	return &bus.FakeDevice{}
}
