package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ericogr/i2c-env-logger/pkg/sensor"
	"gopkg.in/yaml.v3"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic,omitempty" yaml:"discovery_topic,omitempty"`
	DiscoveryName     string `json:"discovery_name,omitempty" yaml:"discovery_name,omitempty"`
	DiscoveryUniqueID string `json:"discovery_unique_id,omitempty" yaml:"discovery_unique_id,omitempty"`
}

type OutputConfig struct {
	Type string      `json:"type" yaml:"type"`
	Path string      `json:"path,omitempty" yaml:"path,omitempty"`
	MQTT *MQTTConfig `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
}

type MuxConfig struct {
	Address  int    `json:"address" yaml:"address"`
	Channels []int  `json:"channels" yaml:"channels"`
	Sensor   string `json:"sensor" yaml:"sensor"`
}

type Config struct {
	I2CBus  string   `json:"i2c_bus" yaml:"i2c_bus"`
	Sensors []string `json:"sensors" yaml:"sensors"`
	// Addresses overrides device addresses changed with the board jumpers.
	Addresses  map[string]int `json:"addresses,omitempty" yaml:"addresses,omitempty"`
	Mux        *MuxConfig     `json:"mux,omitempty" yaml:"mux,omitempty"`
	Outputs    []OutputConfig `json:"outputs" yaml:"outputs"`
	SensorType string         `json:"sensor_type" yaml:"sensor_type"`
	IntervalMs int            `json:"interval_ms" yaml:"interval_ms"`
	Once       bool           `json:"once" yaml:"once"`
}

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"

	DefaultMuxAddress = 0x70
	DefaultReportPath = "report.csv"
	// DefaultIntervalMs is 15 minutes between cycles.
	DefaultIntervalMs = 15 * 60 * 1000
)

func DefaultConfig() Config {
	return Config{
		I2CBus:     "1",
		Sensors:    []string{string(sensor.TagPCT2075), string(sensor.TagPH), string(sensor.TagSHT30)},
		Outputs:    []OutputConfig{{Type: "console"}, {Type: "csv", Path: DefaultReportPath}},
		SensorType: SensorTypeReal,
		IntervalMs: DefaultIntervalMs,
	}
}

// LoadFromFlags loads configuration from a JSON or YAML file (optional) and flags.
// Flags override values present in the file.
func LoadFromFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("i2c-env-logger", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagI2CBus := fs.String("i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	flagSensors := fs.String("sensors", "", "Comma-separated sensors in column order (pct2075,ph,sht30)")
	flagAddresses := fs.String("address", "", "Address overrides e.g. sht30=0x45,pct2075=0x37")
	flagMuxAddr := fs.String("mux-address", "", "Mux address (decimal or 0x hex); enables the mux")
	flagMuxChannels := fs.String("mux-channels", "", "Comma-separated mux channels e.g. 0,1,2; enables the mux")
	flagMuxSensor := fs.String("mux-sensor", "", "Sensor wired behind every mux channel")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,csv,mqtt)")
	flagCSVPath := fs.String("csv-path", "", "CSV report file")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagDiscovery := fs.String("mqtt-discovery-topic", "", "Home Assistant discovery topic, %s is replaced by the column")
	flagSensorType := fs.String("sensor-type", "", "sensor type: real|simulation")
	flagInterval := fs.Int("interval-ms", -1, "Interval between poll cycles in ms")
	flagOnce := fs.Bool("once", false, "Run a single poll cycle and exit")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}

	if *flagI2CBus != "" {
		cfg.I2CBus = *flagI2CBus
	}
	if *flagSensors != "" {
		cfg.Sensors = parseCSV(*flagSensors)
	}
	if *flagAddresses != "" {
		m, err := parseKeyIntMap(*flagAddresses)
		if err != nil {
			return cfg, fmt.Errorf("address: %w", err)
		}
		if cfg.Addresses == nil {
			cfg.Addresses = map[string]int{}
		}
		for k, v := range m {
			cfg.Addresses[k] = v
		}
	}
	if *flagMuxAddr != "" || *flagMuxChannels != "" || *flagMuxSensor != "" {
		if cfg.Mux == nil {
			cfg.Mux = &MuxConfig{Address: DefaultMuxAddress, Channels: []int{0, 1, 2}, Sensor: string(sensor.TagSHT30)}
		}
		if *flagMuxAddr != "" {
			v, err := parseIntOrHex(*flagMuxAddr)
			if err != nil {
				return cfg, fmt.Errorf("mux-address: %w", err)
			}
			cfg.Mux.Address = v
		}
		if *flagMuxChannels != "" {
			chs, err := parseChannels(*flagMuxChannels)
			if err != nil {
				return cfg, err
			}
			cfg.Mux.Channels = chs
		}
		if *flagMuxSensor != "" {
			cfg.Mux.Sensor = *flagMuxSensor
		}
	}
	if *flagOutputs != "" {
		// convert simple CSV of types into structured OutputConfig entries
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p})
		}
		cfg.Outputs = outs
	}
	if *flagCSVPath != "" {
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == "csv" {
				cfg.Outputs[i].Path = *flagCSVPath
				applied = true
			}
		}
		if !applied {
			cfg.Outputs = append(cfg.Outputs, OutputConfig{Type: "csv", Path: *flagCSVPath})
		}
	}
	// map mqtt flags into the mqtt outputs (create one if missing)
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" || *flagDiscovery != "" {
		apply := func(m *MQTTConfig) {
			if *flagMQTTServer != "" {
				m.Server = *flagMQTTServer
			}
			if *flagMQTTUser != "" {
				m.Username = *flagMQTTUser
			}
			if *flagMQTTPass != "" {
				m.Password = *flagMQTTPass
			}
			if *flagClientID != "" {
				m.ClientID = *flagClientID
			}
			if *flagTopic != "" {
				m.StateTopic = *flagTopic
			}
			if *flagDiscovery != "" {
				m.DiscoveryTopic = *flagDiscovery
			}
		}
		applied := false
		for i := range cfg.Outputs {
			if strings.ToLower(cfg.Outputs[i].Type) == "mqtt" {
				if cfg.Outputs[i].MQTT == nil {
					cfg.Outputs[i].MQTT = &MQTTConfig{}
				}
				apply(cfg.Outputs[i].MQTT)
				applied = true
			}
		}
		if !applied {
			mqttOut := OutputConfig{Type: "mqtt", MQTT: &MQTTConfig{}}
			apply(mqttOut.MQTT)
			cfg.Outputs = append(cfg.Outputs, mqttOut)
		}
	}
	if *flagSensorType != "" {
		cfg.SensorType = *flagSensorType
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagOnce {
		cfg.Once = true
	}

	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks values that cannot be fixed up at runtime.
func (c Config) Validate() error {
	switch c.SensorType {
	case SensorTypeReal, SensorTypeSimulation:
	default:
		return fmt.Errorf("sensor-type must be %s or %s, got %q", SensorTypeReal, SensorTypeSimulation, c.SensorType)
	}
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if c.Mux == nil && len(c.Sensors) == 0 {
		return errors.New("no sensors configured")
	}
	for _, s := range c.Sensors {
		if _, err := sensor.ParseTag(s); err != nil {
			return err
		}
	}
	for name, addr := range c.Addresses {
		if _, err := sensor.ParseTag(name); err != nil {
			return fmt.Errorf("address: %w", err)
		}
		if addr < 0 || addr > 0x7F {
			return fmt.Errorf("address for %s out of 7-bit range: 0x%X", name, addr)
		}
	}
	if c.Mux != nil {
		if c.Mux.Address < 0 || c.Mux.Address > 0x7F {
			return fmt.Errorf("mux address out of 7-bit range: 0x%X", c.Mux.Address)
		}
		if len(c.Mux.Channels) == 0 {
			return errors.New("mux needs at least one channel")
		}
		for _, ch := range c.Mux.Channels {
			if ch < 0 || ch > 7 {
				return fmt.Errorf("mux channel %d out of range 0..7", ch)
			}
		}
		if _, err := sensor.ParseTag(c.Mux.Sensor); err != nil {
			return fmt.Errorf("mux sensor: %w", err)
		}
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "csv", "mqtt":
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func parseIntOrHex(s string) (int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t == "" {
			continue
		}
		v, err := strconv.Atoi(t)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", t, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseKeyIntMap parses "name=value" pairs; values may be decimal or 0x hex.
func parseKeyIntMap(s string) (map[string]int, error) {
	out := map[string]int{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair '%s'", p)
		}
		v, err := parseIntOrHex(kv[1])
		if err != nil {
			return nil, fmt.Errorf("invalid value in '%s': %w", p, err)
		}
		out[strings.TrimSpace(kv[0])] = v
	}
	return out, nil
}
