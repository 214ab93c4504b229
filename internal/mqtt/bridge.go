package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garagedoor2mqtt/internal/cover"
	"github.com/jkaflik/garagedoor2mqtt/internal/cover/gdo"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const TopicPrefix = "garagedoor2mqtt"

const (
	mqttOpenCmd   = "open"
	mqttCloseCmd  = "close"
	mqttStopCmd   = "stop"
	mqttToggleCmd = "toggle"

	mqttObstructedPayload = "ON"
	mqttClearPayload      = "OFF"
)

const restoreTimeout = 5 * time.Second

// Client is the part of paho.Client the bridge needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
}

type Bridge struct {
	mqtt  Client
	cover cover.Cover

	StateTopic       string
	PositionTopic    string
	MetadataTopic    string
	ObstructionTopic string
	PressTopic       string

	CommandTopic        string
	PositionChangeTopic string

	restoreOnce sync.Once
}

func NewBridge(client Client, c cover.Cover) (*Bridge, error) {
	bridge := &Bridge{mqtt: client, cover: c}
	bridge.StateTopic = fmt.Sprintf("%s/%s/state", TopicPrefix, c.Name())
	bridge.PositionTopic = fmt.Sprintf("%s/%s/position", TopicPrefix, c.Name())
	bridge.MetadataTopic = fmt.Sprintf("%s/%s/metadata", TopicPrefix, c.Name())
	bridge.ObstructionTopic = fmt.Sprintf("%s/%s/obstruction", TopicPrefix, c.Name())
	bridge.PressTopic = fmt.Sprintf("%s/%s/press", TopicPrefix, c.Name())
	bridge.CommandTopic = fmt.Sprintf("%s/%s/set", TopicPrefix, c.Name())
	bridge.PositionChangeTopic = fmt.Sprintf("%s/%s/position/set", TopicPrefix, c.Name())

	if err := bridge.restorePosition(); err != nil {
		return nil, err
	}

	c.OnUpdate(bridge.onCoverUpdateHandler())

	return bridge, nil
}

func (b *Bridge) SetMetadata(value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if token := b.mqtt.Publish(b.MetadataTopic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT metadata publish failed", b.cover.Name())
	}

	return nil
}

// Subscribe listens for commands until ctx is done.
func (b *Bridge) Subscribe(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		if token := b.mqtt.Unsubscribe(b.PositionChangeTopic, b.CommandTopic); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.cover.Name(), token.Error())
		}
	}()

	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommandHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.cover.Name())
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.cover.Name())
	if token := b.mqtt.Subscribe(b.PositionChangeTopic, 0, b.onPositionChangeHandler(ctx)); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT position change topic subscription failed", b.cover.Name())
	}
	logrus.Infof("%s: MQTT position change topic subscribed", b.cover.Name())

	return nil
}

// OnObstruction publishes the obstruction sensor state.
func (b *Bridge) OnObstruction(obstructed bool) {
	payload := mqttClearPayload
	if obstructed {
		payload = mqttObstructedPayload
	}
	b.publish(b.ObstructionTopic, true, payload, "obstruction")
}

// OnPress publishes every press sent to the opener.
func (b *Bridge) OnPress(p gdo.Press) {
	b.publish(b.PressTopic, false, p.String(), "press")
}

func (b *Bridge) onCoverUpdateHandler() cover.UpdateHandler {
	return func(state cover.State, position float64) {
		b.publish(b.StateTopic, true, string(state), "state")
		b.publish(b.PositionTopic, true, strconv.Itoa(toPercent(position)), "position")
	}
}

// publish doesn't wait for the broker. Updates come from the door runner,
// which must not stall on the network.
func (b *Bridge) publish(topic string, retained bool, payload string, what string) {
	token := b.mqtt.Publish(topic, 0, retained, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT %s publish failed: %s", b.cover.Name(), what, token.Error())
		}
	}()
}

func (b *Bridge) onCommandHandler(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var err error
		cmd := strings.TrimSpace(strings.ToLower(string(msg.Payload())))
		switch cmd {
		case mqttOpenCmd:
			err = b.cover.Open(ctx)
		case mqttCloseCmd:
			err = b.cover.Close(ctx)
		case mqttStopCmd:
			err = b.cover.Stop(ctx)
		case mqttToggleCmd:
			err = b.cover.Toggle(ctx)
		default:
			logrus.Errorf("%s: MQTT unsupported %s command received", b.cover.Name(), cmd)
			return
		}
		if err != nil {
			logrus.Errorf("%s: %s command failed: %s", b.cover.Name(), cmd, err)
		}
	}
}

func (b *Bridge) onPositionChangeHandler(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		pos, err := parsePercent(msg.Payload())
		if err != nil {
			logrus.Errorf("%s: MQTT position change: %s", b.cover.Name(), err)
			return
		}
		if err := b.cover.SetPosition(ctx, pos); err != nil {
			logrus.Error(err)
		}
	}
}

// restorePosition reads the retained position once after a restart and
// hands it to the cover as a best guess.
func (b *Bridge) restorePosition() error {
	c, ok := b.cover.(cover.StatelessCover)
	if !ok {
		logrus.Warnf("%s: MQTT position restore: cover is not stateless", b.cover.Name())
		return nil
	}

	restoreHandler := func(_ paho.Client, msg paho.Message) {
		if !msg.Retained() {
			return
		}

		b.restoreOnce.Do(func() {
			pos, err := parsePercent(msg.Payload())
			if err != nil {
				logrus.Errorf("%s: MQTT position restore: %s", b.cover.Name(), err)
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
			defer cancel()
			if err := c.ResetPosition(ctx, pos); err != nil {
				logrus.Errorf("%s: MQTT position restore failed: %s", b.cover.Name(), err)
				return
			}

			logrus.Infof("%s: MQTT position restored to %d", b.cover.Name(), toPercent(pos))

			// waiting inside a message handler would block the paho router
			token := b.mqtt.Unsubscribe(b.PositionTopic)
			go func() {
				if token.Wait() && token.Error() != nil {
					logrus.Errorf("%s: MQTT position restore topic unsubscribe failed: %s", b.cover.Name(), token.Error())
					return
				}
				logrus.Debugf("%s: MQTT position restore topic unsubscribed", b.cover.Name())
			}()
		})
	}

	if token := b.mqtt.Subscribe(b.PositionTopic, 0, restoreHandler); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT position restore topic subscription failed", b.cover.Name())
	}

	return nil
}

func toPercent(position float64) int {
	return int(math.Round(position * 100))
}

func parsePercent(payload []byte) (float64, error) {
	pos, err := strconv.Atoi(strings.TrimSpace(string(payload)))
	if err != nil {
		return 0, errors.Wrapf(err, "invalid position %q", payload)
	}
	if pos < 0 || pos > 100 {
		return 0, errors.Errorf("%d is out of range open/close position (100/0)", pos)
	}
	return float64(pos) / 100, nil
}
