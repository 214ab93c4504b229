package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garagedoor2mqtt/internal/mqtt"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config.yaml file path")
	flag.Parse()

	if err := configLoader.Load(); err != nil {
		logrus.Fatal(err)
	}
	if err := loadConfigFromYamlFile(*configPath); err != nil {
		logrus.Fatal(err)
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)

	if len(Cfg.Doors) == 0 {
		logrus.Fatal("no doors configured")
	}

	ctx, cancel := context.WithCancel(context.Background())

	var (
		doorsMu sync.Mutex
		doors   []*door
	)
	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")

		doorsMu.Lock()
		defer doorsMu.Unlock()
		subscribe(ctx, m, doors)
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(cfg)
	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	doorsMu.Lock()
	doors = garagedoor2mqttFromConfig(ctx, m)
	subscribe(ctx, m, doors)
	doorsMu.Unlock()

	var wg sync.WaitGroup
	for _, d := range doors {
		wg.Add(1)
		go func(d *door) {
			defer wg.Done()
			if err := d.runner.Run(ctx); err != nil && ctx.Err() == nil {
				logrus.Errorf("%s: runner stopped: %s", d.runner.Name(), err)
			}
		}(d)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		oscall := <-c
		logrus.Infof("system call: %+v", oscall)
		cancel()
	}()

	<-ctx.Done()

	cleanupTime := time.Second
	logrus.Infof("cleanups for %s...", cleanupTime.String())
	wg.Wait()
	for _, d := range doors {
		d.presser.Wait()
	}
	m.Disconnect(uint(cleanupTime.Milliseconds()))
}

func subscribe(ctx context.Context, m paho.Client, doors []*door) {
	for _, d := range doors {
		if Cfg.HASS.Enabled {
			if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, mqtt.NewHACoverFromMQTTBridge(d.bridge)); err != nil {
				logrus.Error(err)
			}

			if d.obstruction {
				sensor := mqtt.NewHAObstructionFromMQTTBridge(d.bridge)
				if err := mqtt.PublishHABinarySensorAutoDiscovery(m, Cfg.HASS.TopicPrefix, sensor); err != nil {
					logrus.Error(err)
				}
			}
		}

		if err := d.bridge.Subscribe(ctx); err != nil {
			logrus.Error(err)
		}
	}
}
