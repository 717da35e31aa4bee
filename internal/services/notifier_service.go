package services

import (
	"time"

	"facegate/internal/core/processor"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/recognition"
	"facegate/internal/server/sse"

	log "github.com/sirupsen/logrus"
)

// Broadcaster verteilt Ereignisse an Browser-Clients (sse.Hub)
type Broadcaster interface {
	Publish(eventType string, data interface{})
}

// MessagePublisher veröffentlicht Ereignisse über MQTT (mqtt.Client)
type MessagePublisher interface {
	Topic(suffix string) string
	Publish(topic string, payload interface{}) error
	IsConnected() bool
}

// RecognitionEvent ist die Nutzlast eines Erkennungsereignisses
type RecognitionEvent struct {
	Timestamp  time.Time     `json:"timestamp"`
	Outcome    string        `json:"outcome"`
	Label      int           `json:"label,omitempty"`
	Name       string        `json:"name,omitempty"`
	Similarity float64       `json:"similarity"`
	Band       string        `json:"band"`
	Source     string        `json:"source,omitempty"`
	Detector   string        `json:"detector"`
	Box        processor.Box `json:"box"`
	FacesFound int           `json:"faces_found"`
}

// NewRecognitionEvent baut das Ereignis aus einem Verarbeitungsergebnis
func NewRecognitionEvent(r *processor.Result) RecognitionEvent {
	ev := RecognitionEvent{
		Source:     r.Source,
		Detector:   r.Detector,
		Box:        r.Box,
		FacesFound: r.FacesFound,
	}
	if rec := r.Recognition; rec != nil {
		ev.Timestamp = rec.Attempt.Timestamp
		ev.Outcome = string(rec.Attempt.Outcome)
		ev.Label = rec.Attempt.Label
		ev.Similarity = rec.Attempt.Similarity
		ev.Band = string(rec.Band)
		if rec.Attempt.Accepted() && rec.Candidate != nil {
			ev.Name = rec.Candidate.DisplayName
		}
	}
	return ev
}

// NotifierService leitet Erkennungs- und Trainingsereignisse an SSE und MQTT weiter
type NotifierService struct {
	hub   Broadcaster
	mqtt  MessagePublisher
	sinks []processor.EventSink
}

// NewNotifierService erstellt einen Notifier. Beide Ziele sind optional.
func NewNotifierService(hub Broadcaster, publisher MessagePublisher) *NotifierService {
	log.WithFields(log.Fields{"sse": hub != nil, "mqtt": publisher != nil}).Info("Initializing NotifierService")
	return &NotifierService{hub: hub, mqtt: publisher}
}

// AddSink hängt einen weiteren Empfänger für Erkennungsergebnisse an.
// Nicht nebenläufig mit PublishRecognition aufrufen.
func (s *NotifierService) AddSink(sink processor.EventSink) {
	s.sinks = append(s.sinks, sink)
}

// PublishRecognition implementiert processor.EventSink
func (s *NotifierService) PublishRecognition(r *processor.Result) {
	if r == nil {
		return
	}
	ev := NewRecognitionEvent(r)
	if s.hub != nil {
		s.hub.Publish(sse.EventRecognition, ev)
	}
	s.publishMQTT(mqtt.TopicRecognition, ev)
	for _, sink := range s.sinks {
		sink.PublishRecognition(r)
	}
}

// TrainingProgress ist als recognition.ProgressFunc verwendbar
func (s *NotifierService) TrainingProgress(p recognition.Progress) {
	if s.hub != nil {
		s.hub.Publish(sse.EventTraining, p)
	}
	// Über MQTT nur Etappen, nicht jede Probe
	if p.Stage != recognition.StagePreparing || p.Percent == 0 {
		s.publishMQTT(mqtt.TopicTraining, p)
	}
}

func (s *NotifierService) publishMQTT(suffix string, payload interface{}) {
	if s.mqtt == nil || !s.mqtt.IsConnected() {
		return
	}
	if err := s.mqtt.Publish(s.mqtt.Topic(suffix), payload); err != nil {
		log.Warnf("Failed to publish %s event via MQTT: %v", suffix, err)
	}
}
