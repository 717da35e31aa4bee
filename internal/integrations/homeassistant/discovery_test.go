package homeassistant

import (
	"errors"
	"strings"
	"testing"
	"time"

	"facegate/internal/integrations/mqtt"
)

type fakePublisher struct {
	published map[string]interface{}
	err       error
}

func (f *fakePublisher) Topic(suffix string) string { return "fg/" + suffix }

func (f *fakePublisher) PublishRetain(topic string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.published[topic] = payload
	return nil
}

func TestRegisterPublishesSensors(t *testing.T) {
	pub := &fakePublisher{published: map[string]interface{}{}}
	if err := NewDiscoveryManager(pub, "1.2.3").Register(); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(pub.published) != 3 {
		t.Fatalf("published %d configs, want 3", len(pub.published))
	}

	cfg, ok := pub.published["homeassistant/sensor/facegate/last_person/config"].(SensorConfig)
	if !ok {
		t.Fatalf("last_person config missing: %v", pub.published)
	}
	if cfg.StateTopic != "fg/recognition" || cfg.AvailabilityTopic != "fg/status" {
		t.Errorf("topics = %s, %s", cfg.StateTopic, cfg.AvailabilityTopic)
	}
	if cfg.Device == nil || cfg.Device.SWVersion != "1.2.3" {
		t.Errorf("device = %+v", cfg.Device)
	}
	if !strings.Contains(cfg.ValueTemplate, "value_json.name") {
		t.Errorf("value template = %q", cfg.ValueTemplate)
	}

	training := pub.published["homeassistant/sensor/facegate/training/config"].(SensorConfig)
	if training.StateTopic != "fg/training" {
		t.Errorf("training state topic = %s", training.StateTopic)
	}
}

func TestRegisterReportsFailures(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not connected")}
	if err := NewDiscoveryManager(pub, "").Register(); err == nil {
		t.Error("Register() should fail when publishing fails")
	}
}

// Der Server reicht denselben MQTT-Client an Discovery und Publisher.
var (
	_ RetainPublisher = (*mqtt.Client)(nil)
	_ StatePublisher  = (*mqtt.Client)(nil)
)

type brokerStub struct {
	fakeState
	retained map[string]interface{}
}

func (b *brokerStub) PublishRetain(topic string, payload interface{}) error {
	b.retained[topic] = payload
	return nil
}

func TestDiscoveryAndPublisherShareClient(t *testing.T) {
	broker := &brokerStub{fakeState: fakeState{connected: true}, retained: map[string]interface{}{}}

	if err := NewDiscoveryManager(broker, "1.0.0").Register(); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	NewPublisher(broker, time.Minute).PublishRecognition(result("door", true))

	if len(broker.retained) != 3 {
		t.Errorf("retained %d discovery configs, want 3", len(broker.retained))
	}
	if len(broker.messages) != 2 || broker.messages[0].topic != "fg/matches/ada_lovelace" {
		t.Errorf("state messages = %+v", broker.messages)
	}
}
