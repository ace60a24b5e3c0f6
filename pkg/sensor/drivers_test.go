package sensor

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/ericogr/i2c-env-logger/pkg/bus"
	"periph.io/x/conn/v3/i2c/i2ctest"
)

func TestDecodeSHT30(t *testing.T) {
	tests := []struct {
		raw      []byte
		c, f, rh float64
	}{
		{[]byte{0x00, 0x00, 0x00, 0x80, 0x00, 0x00}, -45, -49, 50},
		{[]byte{0x00, 0x00, 0xFF, 0x00, 0x00, 0xFF}, -45, -49, 0},
		{[]byte{0x80, 0x00, 0x00, 0x40, 0x00, 0x00}, 42.5, 108.5, 25},
	}
	for _, tt := range tests {
		c, f, rh, err := DecodeSHT30(tt.raw)
		if err != nil {
			t.Fatalf("DecodeSHT30(% X): %v", tt.raw, err)
		}
		if c != tt.c || f != tt.f || rh != tt.rh {
			t.Fatalf("DecodeSHT30(% X) = %v, %v, %v; want %v, %v, %v", tt.raw, c, f, rh, tt.c, tt.f, tt.rh)
		}
		c2, f2, rh2, _ := DecodeSHT30(tt.raw)
		if c != c2 || f != f2 || rh != rh2 {
			t.Fatalf("DecodeSHT30 not deterministic for % X", tt.raw)
		}
	}
}

func TestSHT30FahrenheitIsIndependentFit(t *testing.T) {
	c, f, _, err := DecodeSHT30([]byte{0x66, 0x66, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	raw := float64(0x6666)
	if f != -49+315*raw/65536.0 {
		t.Fatalf("fahrenheit: got %v", f)
	}
	if c != -45+175*raw/65536.0 {
		t.Fatalf("celsius: got %v", c)
	}
}

func TestDecodePCT2075(t *testing.T) {
	tests := []struct {
		raw  []byte
		c, f float64
	}{
		{[]byte{0x19, 0x00}, 25.0, 77.0},
		{[]byte{0x00, 0x00}, 0, 32},
		{[]byte{0x00, 0x80}, 0.5, 32.9},
	}
	for _, tt := range tests {
		c, f, err := DecodePCT2075(tt.raw)
		if err != nil {
			t.Fatalf("DecodePCT2075(% X): %v", tt.raw, err)
		}
		if c != tt.c || math.Abs(f-tt.f) > 1e-9 {
			t.Fatalf("DecodePCT2075(% X) = %v, %v; want %v, %v", tt.raw, c, f, tt.c, tt.f)
		}
		if math.Abs(f-(c*1.8+32)) > 1e-9 {
			t.Fatalf("fahrenheit %v is not c*1.8+32 for c=%v", f, c)
		}
	}
}

func TestDecodeWrongLength(t *testing.T) {
	if _, _, _, err := DecodeSHT30([]byte{1, 2, 3, 4, 5}); !errors.Is(err, ErrShortResponse) {
		t.Fatalf("sht30: got %v", err)
	}
	if _, _, err := DecodePCT2075([]byte{1}); !errors.Is(err, ErrShortResponse) {
		t.Fatalf("pct2075: got %v", err)
	}
	if _, err := DecodePCF8591([]byte{1, 2, 3}); !errors.Is(err, ErrShortResponse) {
		t.Fatalf("pcf8591: got %v", err)
	}
}

func TestPH(t *testing.T) {
	v := Voltage(0x80)
	if math.Abs(v-128*3.3/255) > 1e-12 {
		t.Fatalf("voltage: got %v", v)
	}
	ph := PH(0x80)
	if math.Abs(ph-(-19.18518519*v+41.02740741)) > 1e-12 {
		t.Fatalf("ph: got %v", ph)
	}
	if math.Abs(ph-9.2) > 0.1 {
		t.Fatalf("ph for 0x80: got %v, want about 9.2", ph)
	}
}

func TestRegistryPollPlayback(t *testing.T) {
	pb := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: SHT30Address, W: []byte{0x2C, 0x06}},
			{Addr: SHT30Address, R: []byte{0x00, 0x00, 0x00, 0x80, 0x00, 0x00}},
		},
		DontPanic: true,
	}
	rd := Drivers.Poll(TagSHT30, bus.New("playback", pb), nil)
	if !rd.OK() {
		t.Fatalf("poll failed: %v", rd.Err)
	}
	want := []string{"-45.00", "-49.00", "50.00"}
	if got := rd.Strings(); !reflect.DeepEqual(got, want) {
		t.Fatalf("strings: got %v want %v", got, want)
	}
	if err := pb.Close(); err != nil {
		t.Fatalf("playback: %v", err)
	}
}

func TestRegistryPollShortRead(t *testing.T) {
	for _, tag := range []Tag{TagSHT30, TagPCT2075, TagPH} {
		d := Drivers[tag]
		fb := bus.NewFakeBus()
		fb.Devices[d.Address] = &bus.FakeDevice{Responses: [][]byte{make([]byte, d.ResponseLen-1)}}
		rd := Drivers.Poll(tag, bus.New("fake", fb), noSleep)
		if rd.OK() || rd.Err == nil {
			t.Fatalf("%s: short read reported as success", tag)
		}
		if rd.Values != nil {
			t.Fatalf("%s: partial values %v", tag, rd.Values)
		}
		for _, s := range rd.Strings() {
			if s != FailureMarker {
				t.Fatalf("%s: expected failure markers, got %v", tag, rd.Strings())
			}
		}
		if len(rd.Strings()) != len(d.Columns) {
			t.Fatalf("%s: failure width %d want %d", tag, len(rd.Strings()), len(d.Columns))
		}
	}
}

func noSleep(time.Duration) {}

func TestRegistryPollPHDiscardsStaleSample(t *testing.T) {
	fb := bus.NewFakeBus()
	adc := &bus.FakeDevice{Responses: [][]byte{{0xFF, 0, 0, 0}, {0x80, 0, 0, 0}}}
	fb.Devices[PCF8591Address] = adc
	var slept []time.Duration
	rd := Drivers.Poll(TagPH, bus.New("fake", fb), func(d time.Duration) {
		if len(adc.Writes) != 1 {
			t.Fatalf("sleep after %d writes, want 1", len(adc.Writes))
		}
		slept = append(slept, d)
	})
	if !rd.OK() {
		t.Fatalf("poll: %v", rd.Err)
	}
	if rd.Values[0] != PH(0x80) {
		t.Fatalf("pH: got %v want %v", rd.Values[0], PH(0x80))
	}
	if len(adc.Writes) != 2 {
		t.Fatalf("ADC polled %d times, want 2", len(adc.Writes))
	}
	if !reflect.DeepEqual(slept, []time.Duration{PHPrimeDelay}) {
		t.Fatalf("sleeps: got %v", slept)
	}
}

func TestRegistryPollPHPrimeFailure(t *testing.T) {
	fb := bus.NewFakeBus()
	fb.Devices[PCF8591Address] = &bus.FakeDevice{ReadErr: errors.New("remote I/O error")}
	rd := Drivers.Poll(TagPH, bus.New("fake", fb), func(time.Duration) { t.Fatalf("slept after failed prime") })
	if rd.OK() || rd.Err == nil {
		t.Fatalf("expected failure, got %v", rd.Values)
	}
}

type shortTx struct{ resp []byte }

func (s shortTx) Transact(addr uint16, w []byte, n int) ([]byte, error) { return s.resp, nil }

func TestDriverPollRejectsWrongLength(t *testing.T) {
	_, err := Drivers[TagPCT2075].Poll(shortTx{resp: []byte{0x19}})
	if !errors.Is(err, ErrShortResponse) {
		t.Fatalf("got %v", err)
	}
}

func TestHeaderFields(t *testing.T) {
	tests := []struct {
		tag  Tag
		want []string
	}{
		{TagPCT2075, []string{"PCT_C", "PCT_F"}},
		{TagPH, []string{"pH"}},
		{TagSHT30, []string{"TempC", "TempF", "Humidity"}},
	}
	for _, tt := range tests {
		got, err := Drivers.HeaderFields(tt.tag)
		if err != nil {
			t.Fatalf("%s: %v", tt.tag, err)
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Fatalf("%s: got %v want %v", tt.tag, got, tt.want)
		}
	}
	if _, err := Drivers.HeaderFields("bogus"); err == nil {
		t.Fatalf("expected error for unknown tag")
	}
}

func TestWithAddress(t *testing.T) {
	reg, err := Drivers.WithAddress(TagSHT30, 0x45)
	if err != nil {
		t.Fatalf("with address: %v", err)
	}
	if reg[TagSHT30].Address != 0x45 {
		t.Fatalf("override not applied")
	}
	if Drivers[TagSHT30].Address != SHT30Address {
		t.Fatalf("default registry modified")
	}
}

func TestParseTag(t *testing.T) {
	tests := map[string]Tag{"PCT2075": TagPCT2075, " ph ": TagPH, "pcf8591": TagPH, "sht3x": TagSHT30}
	for in, want := range tests {
		got, err := ParseTag(in)
		if err != nil || got != want {
			t.Fatalf("ParseTag(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseTag("bme280"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSimulatedBusAnswersEveryDriver(t *testing.T) {
	fb := NewSimulatedBus(Drivers, &SimulatedMux{Addr: bus.DefaultMuxAddress, Channels: []int{0, 1}, Tag: TagSHT30})
	h := bus.New("sim", fb)
	for tag := range Drivers {
		if rd := Drivers.Poll(tag, h, noSleep); !rd.OK() {
			t.Fatalf("%s: %v", tag, rd.Err)
		}
	}
	m := bus.NewMux(h, bus.DefaultMuxAddress)
	if err := m.SelectChannel(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	rd := Drivers.Poll(TagSHT30, h, noSleep)
	if !rd.OK() {
		t.Fatalf("sht30 behind mux: %v", rd.Err)
	}
	if rd.Values[0] < 17 || rd.Values[0] > 27 {
		t.Fatalf("simulated temperature out of range: %v", rd.Values[0])
	}
}
