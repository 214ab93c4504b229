package main

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garagedoor2mqtt/internal/cover/driver/relay"
	"github.com/jkaflik/garagedoor2mqtt/internal/cover/gdo"
	"github.com/jkaflik/garagedoor2mqtt/internal/gpio"
	"github.com/jkaflik/garagedoor2mqtt/internal/mqtt"
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type cfgWiredRelaySetPin struct {
	Kind string `yaml:"kind"`

	Pin uint8 `yaml:"pin"`

	Mcp23017 int `yaml:"mcp23017"`

	// gpio kind only
	Chip string `yaml:"chip"`
}

type cfgRelay struct {
	Kind string `yaml:"kind"`

	Pin          cfgWiredRelaySetPin `yaml:"pin"`
	NormalClosed bool                `yaml:"normal_closed"`
}

type cfgPress struct {
	Pulse time.Duration `yaml:"pulse"`
	Gap   time.Duration `yaml:"gap"`
}

type cfgEndstop struct {
	gpio.InputConfig `yaml:",inline"`

	ActiveLow bool          `yaml:"active_low"`
	Debounce  time.Duration `yaml:"debounce"`
}

type cfgDoorMQTTBridge struct {
	Metadata map[string]interface{} `yaml:"metadata"`
}

type cfgDoor struct {
	Name string `yaml:"name"`

	OpenDuration    time.Duration `yaml:"open_duration"`
	CloseDuration   time.Duration `yaml:"close_duration"`
	EndstopGrace    time.Duration `yaml:"endstop_grace"`
	Tick            time.Duration `yaml:"tick"`
	PublishInterval time.Duration `yaml:"publish_interval"`
	PressPolicy     string        `yaml:"press_policy"`

	OpenEndstop  *cfgEndstop       `yaml:"open_endstop"`
	CloseEndstop *cfgEndstop       `yaml:"close_endstop"`
	Obstruction  *gpio.InputConfig `yaml:"obstruction"`

	Relay cfgRelay `yaml:"relay"`
	Press cfgPress `yaml:"press"`

	MQTTBridge cfgDoorMQTTBridge `yaml:"mqtt_bridge"`
}

type cfgDrivers struct {
	Relay struct {
		Pool     int `yaml:"pool" default:"0"`
		Mcp23017 map[int]struct {
			Bus          uint8 `yaml:"bus" default:"1"`
			DeviceNumber uint8 `yaml:"device_number" default:"0"`
		} `yaml:"mcp23017"`
	} `yaml:"relay"`
}

type cfgMQTT struct {
	ClientID string `yaml:"client_id" default:"garagedoor2mqtt" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type config struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	MQTT cfgMQTT `yaml:"mqtt" env:"MQTT"`
	HASS cfgHASS `yaml:"hass" env:"HASS"`

	Doors []cfgDoor `yaml:"doors"`

	Drivers cfgDrivers `yaml:"drivers"`
}

var Cfg config

// Flags are parsed by main, aconfig only handles defaults and environment.
var configLoader = aconfig.LoaderFor(&Cfg, aconfig.Config{
	EnvPrefix: "GDO2M",
	SkipFlags: true,
	SkipFiles: true,
})

var relaysPool chan struct{}

func loadConfigFromYamlFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
		return errors.Wrapf(err, "decode %s", filename)
	}

	if Cfg.Drivers.Relay.Pool > 0 {
		relaysPool = make(chan struct{}, Cfg.Drivers.Relay.Pool)
	}

	return nil
}

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(Cfg.MQTT.ClientID).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)
}

// door is everything wired for a single configured garage door.
type door struct {
	runner  *gdo.Runner
	bridge  *mqtt.Bridge
	presser *relay.Presser

	obstruction bool
}

func garagedoor2mqttFromConfig(ctx context.Context, client paho.Client) (doors []*door) {
	for _, cfg := range Cfg.Doors {
		d, err := doorFromConfig(ctx, cfg, client)
		if err != nil {
			logrus.Fatal(err)
		}
		doors = append(doors, d)
	}

	return doors
}

func doorFromConfig(ctx context.Context, cfg cfgDoor, client mqtt.Client) (*door, error) {
	// Line events can arrive before the runner exists, those are dropped.
	// The debouncers are seeded from the line value instead.
	var sink atomic.Pointer[gdo.Runner]
	onEdge := func(src gdo.Source) gpio.EdgeHandler {
		return func(level bool, ts time.Time) {
			if r := sink.Load(); r != nil {
				r.Edge(gdo.Edge{Source: src, Level: level, Time: ts})
			}
		}
	}

	openEndstop, err := endstopFromConfig(ctx, cfg.Name, gdo.OpenEndstop, cfg.OpenEndstop, onEdge(gdo.OpenEndstop))
	if err != nil {
		return nil, err
	}
	closeEndstop, err := endstopFromConfig(ctx, cfg.Name, gdo.CloseEndstop, cfg.CloseEndstop, onEdge(gdo.CloseEndstop))
	if err != nil {
		return nil, err
	}

	policy, ok := gdo.PolicyByName(cfg.PressPolicy)
	if !ok {
		return nil, errors.Errorf("%s: %s is not supported press policy", cfg.Name, cfg.PressPolicy)
	}

	r, err := relayFromConfig(ctx, cfg.Name, cfg.Relay)
	if err != nil {
		return nil, err
	}
	presser := relay.NewPresser(cfg.Name, r, cfg.Press.Pulse, cfg.Press.Gap)

	dispatcher := gdo.NewDispatcher()
	dispatcher.BindAll(presser.Handler(ctx))

	controller, err := gdo.NewController(gdo.Config{
		Name:            cfg.Name,
		OpenDuration:    cfg.OpenDuration,
		CloseDuration:   cfg.CloseDuration,
		OpenEndstop:     openEndstop,
		CloseEndstop:    closeEndstop,
		EndstopGrace:    cfg.EndstopGrace,
		Policy:          policy,
		PublishInterval: cfg.PublishInterval,
	}, dispatcher)
	if err != nil {
		return nil, err
	}

	runner := gdo.NewRunner(controller, cfg.Tick)
	sink.Store(runner)

	bridge, err := mqtt.NewBridge(client, runner)
	if err != nil {
		return nil, err
	}
	if err := bridge.SetMetadata(cfg.MQTTBridge.Metadata); err != nil {
		return nil, err
	}
	dispatcher.BindAll(bridge.OnPress)

	d := &door{runner: runner, bridge: bridge, presser: presser}

	if cfg.Obstruction != nil {
		if err := obstructionFromConfig(ctx, runner, *cfg.Obstruction); err != nil {
			return nil, errors.Wrapf(err, "%s: obstruction", cfg.Name)
		}
		runner.OnObstruction(bridge.OnObstruction)
		d.obstruction = true
	}

	return d, nil
}

func endstopFromConfig(ctx context.Context, name string, src gdo.Source, cfg *cfgEndstop, h gpio.EdgeHandler) (*gdo.Debouncer, error) {
	if cfg == nil {
		logrus.Infof("%s: no %s, position is estimated", name, src)
		return nil, nil
	}

	in, err := gpio.WatchInput(cfg.InputConfig, h)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: %s", name, src)
	}
	closeOnDone(ctx, in, name, src.String())

	level, err := in.Value()
	if err != nil {
		return nil, errors.Wrapf(err, "%s: %s", name, src)
	}

	d := gdo.NewDebouncer(src, cfg.Debounce, cfg.ActiveLow)
	d.Seed(level, time.Now())
	logrus.Debugf("%s: %s is %s", name, src, d.State())

	return d, nil
}

func obstructionFromConfig(ctx context.Context, runner *gdo.Runner, cfg gpio.InputConfig) error {
	o := gdo.NewObstruction(time.Now())

	in, err := gpio.CountFalling(cfg, o.Pulse)
	if err != nil {
		return err
	}
	closeOnDone(ctx, in, runner.Name(), "obstruction")

	runner.AttachObstruction(o, in.Value)
	return nil
}

func closeOnDone(ctx context.Context, in *gpio.Input, name, what string) {
	go func() {
		<-ctx.Done()
		if err := in.Close(); err != nil {
			logrus.Errorf("%s: %s close failed %s", name, what, err)
		}
	}()
}

func relayFromConfig(ctx context.Context, name string, cfg cfgRelay) (relay.Relay, error) {
	switch cfg.Kind {
	case "wired":
		pin, err := wiredRelaySetPinFromConfig(ctx, name, cfg.Pin, cfg.NormalClosed)
		if err != nil {
			return nil, err
		}
		r := &relay.Wired{Pin: pin, NormalClosed: cfg.NormalClosed}
		if err := r.Release(); err != nil {
			return nil, errors.Wrapf(err, "%s: relay release", name)
		}
		return wrapRelayWithPoolProxy(r), nil
	case "dumb":
		return wrapRelayWithPoolProxy(&relay.Dumb{Name: name}), nil
	}

	return nil, errors.Errorf("%s: %s is not supported relay kind", name, cfg.Kind)
}

func wrapRelayWithPoolProxy(r relay.Relay) relay.Relay {
	if relaysPool == nil {
		return r
	}

	return relay.NewPoolProxy(r, relaysPool)
}

func wiredRelaySetPinFromConfig(ctx context.Context, name string, cfg cfgWiredRelaySetPin, normalClosed bool) (relay.SetPin, error) {
	switch cfg.Kind {
	case "mcp23017":
		device, err := mcp23017DeviceFromConfigByID(ctx, cfg.Mcp23017)
		if err != nil {
			return nil, err
		}
		return relay.NewMcp23017Pin(device, cfg.Pin)
	case "gpio":
		// request the line at its idle level so the opener is not pressed
		out, err := gpio.NewOutput(cfg.Chip, int(cfg.Pin), !normalClosed)
		if err != nil {
			return nil, err
		}
		go func() {
			<-ctx.Done()
			if err := out.Close(); err != nil {
				logrus.Errorf("%s: relay line close failed %s", name, err)
			}
		}()
		return out, nil
	}

	return nil, errors.Errorf("%s: %s is not supported wired relay set pin kind", name, cfg.Kind)
}

var mcpDevices = map[int]*mcp23017.Device{}

func mcp23017DeviceFromConfigByID(ctx context.Context, id int) (*mcp23017.Device, error) {
	if Cfg.Drivers.Relay.Mcp23017 == nil {
		return nil, errors.New("drivers.relay.mcp23017 not defined")
	}

	cfg, found := Cfg.Drivers.Relay.Mcp23017[id]
	if !found {
		return nil, errors.Errorf("%d is not valid defined drivers.relay.mcp23017", id)
	}

	if dev := mcpDevices[id]; dev != nil {
		return dev, nil
	}

	dev, err := mcp23017.Open(cfg.Bus, cfg.DeviceNumber)
	if err != nil {
		return nil, errors.Wrapf(err, "mcp23017 %d", id)
	}
	go func() {
		<-ctx.Done()
		if err := dev.Close(); err != nil {
			logrus.Errorf("mcp23017: close failed %s", err)
			return
		}

		logrus.Infof("mcp23017: close")
	}()
	if err := dev.Reset(); err != nil {
		return nil, errors.Wrapf(err, "mcp23017 %d reset", id)
	}

	mcpDevices[id] = dev
	return dev, nil
}
