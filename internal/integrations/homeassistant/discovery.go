package homeassistant

import (
	"fmt"

	"facegate/internal/integrations/mqtt"

	log "github.com/sirupsen/logrus"
)

// Constants for Home Assistant MQTT Discovery
const (
	// Discovery-Präfix für Home Assistant (Standard ist "homeassistant")
	DiscoveryPrefix = "homeassistant"

	// Component-Typ für Sensoren
	ComponentSensor = "sensor"

	// Node-ID für facegate
	NodeID = "facegate"
)

// SensorConfig repräsentiert die MQTT-Discovery-Konfiguration für einen Sensor in Home Assistant
type SensorConfig struct {
	Name                string  `json:"name"`
	UniqueID            string  `json:"unique_id"`
	StateTopic          string  `json:"state_topic"`
	Icon                string  `json:"icon,omitempty"`
	JSONAttributesTopic string  `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string  `json:"value_template,omitempty"`
	UnitOfMeasurement   string  `json:"unit_of_measurement,omitempty"`
	AvailabilityTopic   string  `json:"availability_topic,omitempty"`
	PayloadAvailable    string  `json:"payload_available,omitempty"`
	PayloadNotAvailable string  `json:"payload_not_available,omitempty"`
	Device              *Device `json:"device,omitempty"`
}

// Device repräsentiert die Geräteinformationen für Home Assistant
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// RetainPublisher ist der Teil des MQTT-Clients, den die Discovery benötigt
type RetainPublisher interface {
	Topic(suffix string) string
	PublishRetain(topic string, payload interface{}) error
}

// DiscoveryManager verwaltet die Home Assistant MQTT Discovery
type DiscoveryManager struct {
	publisher RetainPublisher
	version   string
}

// NewDiscoveryManager erstellt einen neuen Manager für Home Assistant Discovery
func NewDiscoveryManager(publisher RetainPublisher, version string) *DiscoveryManager {
	return &DiscoveryManager{publisher: publisher, version: version}
}

// Sensors liefert die Discovery-Konfigurationen, indiziert nach Objekt-ID
func (dm *DiscoveryManager) Sensors() map[string]SensorConfig {
	device := &Device{
		Identifiers:  []string{"facegate"},
		Name:         "facegate",
		Manufacturer: "facegate",
		Model:        "LBPH face recognition",
		SWVersion:    dm.version,
	}
	recognitionTopic := dm.publisher.Topic(mqtt.TopicRecognition)
	statusTopic := dm.publisher.Topic(mqtt.TopicStatus)

	base := SensorConfig{
		StateTopic:          recognitionTopic,
		JSONAttributesTopic: recognitionTopic,
		Icon:                "mdi:face-recognition",
		AvailabilityTopic:   statusTopic,
		PayloadAvailable:    "online",
		PayloadNotAvailable: "offline",
		Device:              device,
	}

	person := base
	person.Name = "facegate last person"
	person.UniqueID = "facegate_last_person"
	person.ValueTemplate = "{{ value_json.name if value_json.outcome == 'accepted' else 'unknown' }}"

	similarity := base
	similarity.Name = "facegate last similarity"
	similarity.UniqueID = "facegate_last_similarity"
	similarity.ValueTemplate = "{{ value_json.similarity | round(1) }}"
	similarity.UnitOfMeasurement = "%"
	similarity.JSONAttributesTopic = ""

	training := base
	training.Name = "facegate training"
	training.UniqueID = "facegate_training"
	training.StateTopic = dm.publisher.Topic(mqtt.TopicTraining)
	training.JSONAttributesTopic = training.StateTopic
	training.ValueTemplate = "{{ value_json.stage }}"
	training.Icon = "mdi:school"

	return map[string]SensorConfig{
		"last_person":     person,
		"last_similarity": similarity,
		"training":        training,
	}
}

// Register veröffentlicht alle Discovery-Konfigurationen
func (dm *DiscoveryManager) Register() error {
	var failed int
	for objectID, sensor := range dm.Sensors() {
		topic := fmt.Sprintf("%s/%s/%s/%s/config", DiscoveryPrefix, ComponentSensor, NodeID, objectID)
		log.Infof("Registering Home Assistant sensor %s", objectID)
		if err := dm.publisher.PublishRetain(topic, sensor); err != nil {
			log.Errorf("Failed to register sensor %s: %v", objectID, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to publish %d discovery configurations", failed)
	}
	return nil
}
