package sensor

import (
	"fmt"
	"time"
)

const (
	PCT2075Address = 0x37
	PCF8591Address = 0x48
	SHT30Address   = 0x44

	// PHPrimeDelay is the time the ADC needs to finish the conversion
	// started by the previous poll.
	PHPrimeDelay = 100 * time.Millisecond

	// ADCReference is the full-scale voltage of the pH probe.
	ADCReference = 3.3
	phSlope      = -19.18518519
	phOffset     = 41.02740741
)

// Drivers holds the supported devices at their default addresses.
var Drivers = Registry{
	TagPCT2075: {
		Tag:         TagPCT2075,
		Description: "PCT2075 ambient temperature",
		Address:     PCT2075Address,
		Command:     []byte{0x00}, // temperature register
		ResponseLen: 2,
		Columns: []Column{
			{Name: "PCT_C", Format: "%1.1f", Unit: "°C"},
			{Name: "PCT_F", Format: "%1.1f", Unit: "°F"},
		},
		Decode: func(raw []byte) ([]float64, error) {
			c, f, err := DecodePCT2075(raw)
			return []float64{c, f}, err
		},
	},
	TagPH: {
		Tag:         TagPH,
		Description: "PCF8591 ADC with pH probe",
		Address:     PCF8591Address,
		Command:     []byte{0x00, 0x00}, // control byte, channel 0
		ResponseLen: 4,
		Columns:     []Column{{Name: "pH", Format: "%1.1f", Unit: "pH"}},
		Decode: func(raw []byte) ([]float64, error) {
			b, err := DecodePCF8591(raw)
			return []float64{float64(b)}, err
		},
		Derive: func(vals []float64) []float64 {
			return []float64{PH(byte(vals[0]))}
		},
		PrimeDelay: PHPrimeDelay,
	},
	TagSHT30: {
		Tag:         TagSHT30,
		Description: "SHT30 temperature and humidity",
		Address:     SHT30Address,
		Command:     []byte{0x2C, 0x06}, // single shot, high repeatability, clock stretching
		ResponseLen: 6,
		Columns: []Column{
			{Name: "TempC", Format: "%1.2f", Unit: "°C"},
			{Name: "TempF", Format: "%1.2f", Unit: "°F"},
			{Name: "Humidity", Format: "%1.2f", Unit: "%"},
		},
		Decode: func(raw []byte) ([]float64, error) {
			c, f, rh, err := DecodeSHT30(raw)
			return []float64{c, f, rh}, err
		},
	},
}

// DecodeSHT30 converts a 6 byte SHT30 measurement. Bytes 2 and 5 are CRCs and
// are not checked. Fahrenheit comes from its own linear fit on the raw value,
// not from the Celsius result.
func DecodeSHT30(raw []byte) (celsius, fahrenheit, humidity float64, err error) {
	if len(raw) != 6 {
		return 0, 0, 0, fmt.Errorf("sht30: %w: got %d want 6", ErrShortResponse, len(raw))
	}
	t := float64(int(raw[0])*256 + int(raw[1]))
	celsius = -45 + 175*t/65536.0
	fahrenheit = -49 + 315*t/65536.0
	humidity = 100 * float64(int(raw[3])*256+int(raw[4])) / 65536.0
	return celsius, fahrenheit, humidity, nil
}

// DecodePCT2075 converts the 2 byte temperature register. The raw/256 scale
// matches the devices in the field, not the datasheet layout; keep it until
// it can be checked against hardware.
func DecodePCT2075(raw []byte) (celsius, fahrenheit float64, err error) {
	if len(raw) != 2 {
		return 0, 0, fmt.Errorf("pct2075: %w: got %d want 2", ErrShortResponse, len(raw))
	}
	v := uint16(raw[0])<<8 | uint16(raw[1])
	celsius = float64(v) / 256.0
	fahrenheit = celsius*9.0/5.0 + 32
	return celsius, fahrenheit, nil
}

// DecodePCF8591 returns the first byte of a 4 byte ADC read. That byte is the
// result of the conversion started by the previous read.
func DecodePCF8591(raw []byte) (byte, error) {
	if len(raw) != 4 {
		return 0, fmt.Errorf("pcf8591: %w: got %d want 4", ErrShortResponse, len(raw))
	}
	return raw[0], nil
}

// Voltage converts an 8-bit ADC sample to volts.
func Voltage(raw byte) float64 {
	return float64(raw) * (ADCReference / 255)
}

// PH converts an 8-bit ADC sample of the pH probe with its calibration line.
func PH(raw byte) float64 {
	return phSlope*Voltage(raw) + phOffset
}
