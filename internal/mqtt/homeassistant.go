package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	AvailabilityTopic string `json:"avty_t,omitempty"`
	UniqueID          string `json:"uniq_id,omitempty"`
	Name              string `json:"name,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

type haCover struct {
	haEntity
	StateTopic       string `json:"stat_t"`
	CommandTopic     string `json:"cmd_t"`
	PositionTopic    string `json:"pos_t"`
	SetPositionTopic string `json:"set_pos_t"`
	PositionOpen     int    `json:"pos_open"`
	PositionClosed   int    `json:"pos_clsd"`
	PayloadOpen      string `json:"pl_open"`
	PayloadStop      string `json:"pl_stop"`
	PayloadClose     string `json:"pl_cls"`
}

type haBinarySensor struct {
	haEntity
	StateTopic string `json:"stat_t"`
	PayloadOn  string `json:"pl_on"`
	PayloadOff string `json:"pl_off"`
}

func haDeviceFromBridge(bridge *Bridge) haDevice {
	return haDevice{
		Identifiers:  []string{fmt.Sprintf("%s_%s", TopicPrefix, bridge.cover.Name())},
		Manufacturer: "garagedoor2mqtt",
		Model:        "Garage door opener",
		Name:         bridge.cover.Name(),
		SWVersion:    TopicPrefix,
	}
}

func NewHACoverFromMQTTBridge(bridge *Bridge) haCover {
	return haCover{
		haEntity: haEntity{
			UniqueID:    bridge.cover.Name(),
			Name:        bridge.cover.Name(),
			DeviceClass: "garage",
			Device:      haDeviceFromBridge(bridge),
		},
		StateTopic:       bridge.StateTopic,
		CommandTopic:     bridge.CommandTopic,
		PositionTopic:    bridge.PositionTopic,
		SetPositionTopic: bridge.PositionChangeTopic,
		PositionOpen:     100,
		PositionClosed:   0,
		PayloadOpen:      mqttOpenCmd,
		PayloadStop:      mqttStopCmd,
		PayloadClose:     mqttCloseCmd,
	}
}

func NewHAObstructionFromMQTTBridge(bridge *Bridge) haBinarySensor {
	return haBinarySensor{
		haEntity: haEntity{
			UniqueID:    bridge.cover.Name() + "_obstruction",
			Name:        bridge.cover.Name() + " obstruction",
			DeviceClass: "problem",
			Device:      haDeviceFromBridge(bridge),
		},
		StateTopic: bridge.ObstructionTopic,
		PayloadOn:  mqttObstructedPayload,
		PayloadOff: mqttClearPayload,
	}
}

func PublishHAAutoDiscovery(client Client, homeAssistantDiscoveryTopicPrefix string, haCover haCover) error {
	topic := fmt.Sprintf("%s/cover/%s/%s/config", homeAssistantDiscoveryTopicPrefix, TopicPrefix, haCover.UniqueID)
	return publishDiscovery(client, topic, haCover)
}

func PublishHABinarySensorAutoDiscovery(client Client, homeAssistantDiscoveryTopicPrefix string, sensor haBinarySensor) error {
	topic := fmt.Sprintf("%s/binary_sensor/%s/%s/config", homeAssistantDiscoveryTopicPrefix, TopicPrefix, sensor.UniqueID)
	return publishDiscovery(client, topic, sensor)
}

func publishDiscovery(client Client, topic string, entity interface{}) error {
	payload, err := json.Marshal(entity)
	if err != nil {
		return err
	}

	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "home assistant discovery publish to %s failed", topic)
	}

	return nil
}
