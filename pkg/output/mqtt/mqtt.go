package mqtt

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/ericogr/i2c-env-logger/pkg/config"
	"github.com/ericogr/i2c-env-logger/pkg/output"
	"github.com/ericogr/i2c-env-logger/pkg/poll"
)

const (
	// defaults
	DefaultServer     = "tcp://localhost:1883"
	DefaultClientID   = "i2c-env-logger"
	DefaultStateTopic = "envlogger/state"
	// discovery payload keys/values
	keyName                = "name"
	keyStateTopic          = "state_topic"
	keyUnitOfMeasurement   = "unit_of_measurement"
	keyDeviceClass         = "device_class"
	keyStateClass          = "state_class"
	keyValueTemplate       = "value_template"
	keyJSONAttributesTopic = "json_attributes_topic"
	keyUniqueID            = "unique_id"
	stateClassMeasurement  = "measurement"
	keyTimestamp           = "timestamp"
)

type MQTTOutput struct {
	client     mqtt.Client
	cfg        config.MQTTConfig
	stateTopic string
	units      map[string]string
}

// NewMQTT connects to the broker. units maps record columns to their unit of
// measurement and is only used for discovery.
func NewMQTT(cfg config.MQTTConfig, units map[string]string) (output.Output, error) {
	if cfg.Server == "" {
		cfg.Server = DefaultServer
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	opts := mqtt.NewClientOptions().AddBroker(cfg.Server).SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	st := cfg.StateTopic
	if st == "" {
		st = DefaultStateTopic
	}
	return &MQTTOutput{client: client, cfg: cfg, stateTopic: st, units: units}, nil
}

// EmitHeader publishes Home Assistant discovery configs, one per column, when
// the discovery topic contains a %s formatter for the column name.
func (m *MQTTOutput) EmitHeader(columns []string) error {
	dt := m.cfg.DiscoveryTopic
	if dt == "" {
		return nil
	}
	if !strings.Contains(dt, "%s") {
		log.Printf("mqtt discovery topic %q has no %%s formatter, skipping discovery", dt)
		return nil
	}
	for _, col := range columns {
		payload := discoveryPayload(discoveryName(m.cfg, col), m.stateTopic, discoveryUniqueID(m.cfg, col), col, m.units[col])
		if err := publishJSON(m.client, fmt.Sprintf(dt, strings.ToLower(col)), true, payload); err != nil {
			log.Printf("mqtt discovery publish error: %v", err)
		}
	}
	return nil
}

// EmitRecord publishes the whole record as one JSON document. Failed
// readings are published as null.
func (m *MQTTOutput) EmitRecord(rec poll.Record) error {
	return publishJSON(m.client, m.stateTopic, false, recordPayload(rec))
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(250)
	}
	return nil
}

func recordPayload(rec poll.Record) map[string]interface{} {
	payload := map[string]interface{}{keyTimestamp: rec.Timestamp.Unix()}
	for _, rd := range rec.Readings {
		for i, key := range rd.Keys() {
			if rd.OK() {
				payload[key] = rd.Values[i]
			} else {
				payload[key] = nil
			}
		}
	}
	return payload
}

// helper: build a human-friendly discovery name for a column
func discoveryName(cfg config.MQTTConfig, col string) string {
	name := cfg.DiscoveryName
	if name == "" {
		name = cfg.ClientID
	}
	return fmt.Sprintf("%s %s", name, col)
}

// helper: build a unique id for a column discovery entry
func discoveryUniqueID(cfg config.MQTTConfig, col string) string {
	uid := cfg.DiscoveryUniqueID
	if uid == "" {
		uid = cfg.ClientID
	}
	if uid == "" {
		return ""
	}
	return fmt.Sprintf("%s_%s", uid, strings.ToLower(col))
}

func deviceClass(unit string) string {
	switch unit {
	case "°C", "°F":
		return "temperature"
	case "%":
		return "humidity"
	case "pH":
		return "ph"
	}
	return ""
}

// helper: discovery payload for one column of the state document
func discoveryPayload(name, stateTopic, uniqueID, col, unit string) map[string]interface{} {
	payload := map[string]interface{}{
		keyName:                name,
		keyStateTopic:          stateTopic,
		keyStateClass:          stateClassMeasurement,
		keyValueTemplate:       fmt.Sprintf("{{ value_json.%s }}", col),
		keyJSONAttributesTopic: stateTopic,
	}
	if unit != "" && unit != "pH" {
		payload[keyUnitOfMeasurement] = unit
	}
	if dc := deviceClass(unit); dc != "" {
		payload[keyDeviceClass] = dc
	}
	if uniqueID != "" {
		payload[keyUniqueID] = uniqueID
	}
	return payload
}

// helper: marshal and publish JSON payload
func publishJSON(client mqtt.Client, topic string, retained bool, payload map[string]interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	token := client.Publish(topic, 0, retained, b)
	token.Wait()
	return token.Error()
}
