package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ericogr/i2c-env-logger/pkg/bus"
	"github.com/ericogr/i2c-env-logger/pkg/config"
	"github.com/ericogr/i2c-env-logger/pkg/output"
	"github.com/ericogr/i2c-env-logger/pkg/output/console"
	"github.com/ericogr/i2c-env-logger/pkg/output/csvfile"
	"github.com/ericogr/i2c-env-logger/pkg/output/mqtt"
	"github.com/ericogr/i2c-env-logger/pkg/poll"
	"github.com/ericogr/i2c-env-logger/pkg/sensor"
)

func main() {
	cfg, err := config.LoadFromFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		log.Fatal(err)
	}
	pcfg, err := pollConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}
	h, err := openBus(cfg, reg, pcfg)
	if err != nil {
		log.Fatal(err)
	}
	defer h.Close()

	cycle, err := poll.New(h, pcfg, reg)
	if err != nil {
		log.Fatal(err)
	}
	outs, err := initOutputs(cfg, cycle)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		for _, o := range outs {
			_ = o.Close()
		}
	}()

	log.Printf("polling %s on i2c bus %s every %s", strings.Join(cycle.Header(), ","), h, time.Duration(cfg.IntervalMs)*time.Millisecond)
	emitHeader(outs, cycle.Header())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	run(ctx, cycle, outs, time.Duration(cfg.IntervalMs)*time.Millisecond, cfg.Once)
}

// buildRegistry applies address overrides from the config to the driver table.
func buildRegistry(cfg config.Config) (sensor.Registry, error) {
	reg := sensor.Drivers
	for name, addr := range cfg.Addresses {
		tag, err := sensor.ParseTag(name)
		if err != nil {
			return nil, err
		}
		if reg, err = reg.WithAddress(tag, uint16(addr)); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func pollConfig(cfg config.Config) (poll.Config, error) {
	var pc poll.Config
	if cfg.Mux != nil {
		tag, err := sensor.ParseTag(cfg.Mux.Sensor)
		if err != nil {
			return pc, fmt.Errorf("mux sensor: %w", err)
		}
		pc.Mux = &poll.MuxConfig{Address: uint16(cfg.Mux.Address), Channels: cfg.Mux.Channels, Sensor: tag}
		return pc, nil
	}
	for _, s := range cfg.Sensors {
		tag, err := sensor.ParseTag(s)
		if err != nil {
			return pc, err
		}
		pc.Sensors = append(pc.Sensors, tag)
	}
	return pc, nil
}

func openBus(cfg config.Config, reg sensor.Registry, pc poll.Config) (*bus.Handle, error) {
	if cfg.SensorType == config.SensorTypeSimulation {
		var mux *sensor.SimulatedMux
		if pc.Mux != nil {
			mux = &sensor.SimulatedMux{Addr: pc.Mux.Address, Channels: pc.Mux.Channels, Tag: pc.Mux.Sensor}
		}
		return bus.New("simulation", sensor.NewSimulatedBus(reg, mux)), nil
	}
	return bus.Open(cfg.I2CBus)
}

func initOutputs(cfg config.Config, cycle *poll.Cycle) ([]output.Output, error) {
	outs := make([]output.Output, 0, len(cfg.Outputs))
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "console":
			outs = append(outs, console.NewConsole())
		case "csv":
			outs = append(outs, csvfile.NewCSV(oc.Path))
		case "mqtt":
			mc := config.MQTTConfig{}
			if oc.MQTT != nil {
				mc = *oc.MQTT
			}
			o, err := mqtt.NewMQTT(mc, cycle.Units())
			if err != nil {
				for _, prev := range outs {
					_ = prev.Close()
				}
				return nil, err
			}
			outs = append(outs, o)
		default:
			return nil, fmt.Errorf("unknown output type %q", oc.Type)
		}
	}
	return outs, nil
}

func emitHeader(outs []output.Output, header []string) {
	for _, o := range outs {
		if err := o.EmitHeader(header); err != nil {
			log.Printf("emit header: %v", err)
		}
	}
}

// runOnce polls all sensors and hands the record to every output. Output
// errors are logged; they never stop the loop.
func runOnce(cycle *poll.Cycle, outs []output.Output) poll.Record {
	rec := cycle.Run()
	for _, o := range outs {
		if err := o.EmitRecord(rec); err != nil {
			log.Printf("emit record: %v", err)
		}
	}
	return rec
}

func run(ctx context.Context, cycle *poll.Cycle, outs []output.Output, interval time.Duration, once bool) {
	for {
		runOnce(cycle, outs)
		if once {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}
