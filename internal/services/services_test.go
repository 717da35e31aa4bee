package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"facegate/internal/core/processor"
	"facegate/internal/integrations/mqtt"
	"facegate/internal/recognition"
	"facegate/internal/server/sse"
)

type published struct {
	kind string
	data interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	events []published
}

func (h *fakeHub) Publish(eventType string, data interface{}) {
	h.mu.Lock()
	h.events = append(h.events, published{eventType, data})
	h.mu.Unlock()
}

type fakeMQTT struct {
	connected bool
	topics    []string
	payloads  []interface{}
}

func (m *fakeMQTT) Topic(suffix string) string { return "fg/" + suffix }
func (m *fakeMQTT) IsConnected() bool          { return m.connected }
func (m *fakeMQTT) Publish(topic string, payload interface{}) error {
	m.topics = append(m.topics, topic)
	m.payloads = append(m.payloads, payload)
	return nil
}

func acceptedResult() *processor.Result {
	return &processor.Result{
		Source:     "door",
		Detector:   "whole-image",
		FacesFound: 1,
		Box:        processor.Box{Width: 200, Height: 200},
		Recognition: &recognition.Recognition{
			Attempt:   recognition.Attempt{Label: 7, Similarity: 84.5, Outcome: recognition.OutcomeAccepted},
			Candidate: &recognition.Prediction{Label: 7, DisplayName: "Grace Hopper", Similarity: 84.5},
			Band:      recognition.BandHigh,
		},
	}
}

func TestNewRecognitionEvent(t *testing.T) {
	ev := NewRecognitionEvent(acceptedResult())
	if ev.Outcome != "accepted" || ev.Name != "Grace Hopper" || ev.Label != 7 || ev.Band != "high" || ev.Source != "door" {
		t.Errorf("event = %+v", ev)
	}

	rejected := acceptedResult()
	rejected.Recognition.Attempt = recognition.Attempt{Similarity: 30, Outcome: recognition.OutcomeRejected}
	if ev := NewRecognitionEvent(rejected); ev.Name != "" || ev.Label != 0 {
		t.Errorf("rejected event leaks candidate: %+v", ev)
	}
}

type sinkFunc func(*processor.Result)

func (f sinkFunc) PublishRecognition(r *processor.Result) { f(r) }

func TestNotifierFansOut(t *testing.T) {
	hub := &fakeHub{}
	broker := &fakeMQTT{connected: true}
	n := NewNotifierService(hub, broker)
	var extra []*processor.Result
	n.AddSink(sinkFunc(func(r *processor.Result) { extra = append(extra, r) }))

	n.PublishRecognition(acceptedResult())
	n.PublishRecognition(nil)

	if len(extra) != 1 {
		t.Errorf("extra sink got %d results, want 1", len(extra))
	}

	if len(hub.events) != 1 || hub.events[0].kind != sse.EventRecognition {
		t.Fatalf("hub events = %+v", hub.events)
	}
	if len(broker.topics) != 1 || broker.topics[0] != "fg/"+mqtt.TopicRecognition {
		t.Fatalf("mqtt topics = %v", broker.topics)
	}

	// preparing steps go to SSE only, milestones to both
	n.TrainingProgress(recognition.Progress{Stage: recognition.StagePreparing, Percent: 0})
	n.TrainingProgress(recognition.Progress{Stage: recognition.StagePreparing, Percent: 25})
	n.TrainingProgress(recognition.Progress{Stage: recognition.StageDone, Percent: 100})
	if len(hub.events) != 4 {
		t.Errorf("hub got %d events, want 4", len(hub.events))
	}
	if len(broker.topics) != 3 {
		t.Errorf("mqtt got %d messages, want 3", len(broker.topics))
	}
}

func TestNotifierSkipsDisconnectedBroker(t *testing.T) {
	broker := &fakeMQTT{}
	NewNotifierService(nil, broker).PublishRecognition(acceptedResult())
	if len(broker.topics) != 0 {
		t.Error("published to a disconnected broker")
	}
}

type fakeRetrainer struct {
	mu      sync.Mutex
	calls   int
	release chan struct{}
	err     error
}

func (f *fakeRetrainer) Retrain(ctx context.Context, _ recognition.EnrollmentSource, progress recognition.ProgressFunc) (*recognition.TrainReport, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	if progress != nil {
		progress(recognition.Progress{Stage: recognition.StageDone, Percent: 100})
	}
	if f.err != nil {
		return nil, f.err
	}
	return &recognition.TrainReport{TrainStats: recognition.TrainStats{Labels: 2, Samples: 10}}, nil
}

func (f *fakeRetrainer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestTrainingServiceRunNow(t *testing.T) {
	var got []recognition.Progress
	svc := NewTrainingService(context.Background(), &fakeRetrainer{}, nil, func(p recognition.Progress) { got = append(got, p) })

	report, err := svc.RunNow(context.Background(), "api")
	if err != nil || report.Samples != 10 {
		t.Fatalf("RunNow() = %+v, %v", report, err)
	}
	if len(got) != 1 {
		t.Errorf("progress events = %d, want 1", len(got))
	}
	last := svc.Last()
	if last == nil || last.Reason != "api" || last.Error != "" || last.Report == nil {
		t.Errorf("Last() = %+v", last)
	}

	failing := NewTrainingService(context.Background(), &fakeRetrainer{err: recognition.ErrNoTrainableData}, nil, nil)
	if _, err := failing.RunNow(context.Background(), "cli"); err == nil {
		t.Fatal("RunNow() should return the training error")
	}
	if failing.Last().Error == "" {
		t.Error("failed run not recorded")
	}
}

func TestTriggerCoalescesRequests(t *testing.T) {
	f := &fakeRetrainer{release: make(chan struct{})}
	svc := NewTrainingService(context.Background(), f, nil, nil)

	svc.Trigger("photo added")
	deadline := time.Now().Add(2 * time.Second)
	for f.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("background training did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// three requests while running collapse into one follow-up run
	svc.Trigger("a")
	svc.Trigger("b")
	svc.Trigger("c")
	if !svc.Running() {
		t.Error("Running() = false during training")
	}

	f.release <- struct{}{}
	f.release <- struct{}{}
	svc.Wait()

	if n := f.count(); n != 2 {
		t.Errorf("retrain ran %d times, want 2", n)
	}
	if svc.Running() {
		t.Error("Running() = true after Wait")
	}
	if last := svc.Last(); last == nil || last.Reason != "c" {
		t.Errorf("last reason = %+v, want c", last)
	}
}

func TestTriggerStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeRetrainer{}
	svc := NewTrainingService(ctx, f, nil, nil)
	svc.Trigger("shutdown")
	svc.Wait()
	if f.count() != 0 {
		t.Error("training ran after context was cancelled")
	}
}

var _ processor.EventSink = (*NotifierService)(nil)
