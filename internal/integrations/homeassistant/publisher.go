package homeassistant

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"facegate/internal/core/processor"

	log "github.com/sirupsen/logrus"
)

// Topics unterhalb des MQTT-Präfixes
const (
	topicMatches = "matches"
	topicSources = "sources"
)

// DefaultResetAfter ist die Ruhezeit, nach der ein Quellenzähler auf 0 fällt
const DefaultResetAfter = 30 * time.Second

// StatePublisher ist der Teil des MQTT-Clients, den der Publisher benötigt
type StatePublisher interface {
	Topic(suffix string) string
	Publish(topic string, payload interface{}) error
	IsConnected() bool
}

// MatchEvent wird pro erkannter Person veröffentlicht
type MatchEvent struct {
	Timestamp  time.Time `json:"timestamp"`
	Name       string    `json:"name"`
	Label      int       `json:"label"`
	Similarity float64   `json:"similarity"`
	Band       string    `json:"band"`
	Source     string    `json:"source,omitempty"`
	Detector   string    `json:"detector"`
	Box        Box       `json:"box"`
	Duration   float64   `json:"duration"`
}

// Box enthält die Koordinaten eines erkannten Gesichts
type Box struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Publisher veröffentlicht Treffer pro Person und zählt Erkennungen pro Quelle.
// Die Zähler fallen nach einer Ruhezeit auf 0 zurück, damit Home Assistant
// Anwesenheit als Zustand abbilden kann.
type Publisher struct {
	mqtt       StatePublisher
	resetAfter time.Duration
	now        func() time.Time

	mu          sync.Mutex
	counters    map[string]int       // Erkennungen pro Quelle
	lastUpdates map[string]time.Time // letzte Aktualisierung pro Quelle
}

// NewPublisher erstellt einen Publisher. resetAfter <= 0 verwendet DefaultResetAfter.
func NewPublisher(mqtt StatePublisher, resetAfter time.Duration) *Publisher {
	if resetAfter <= 0 {
		resetAfter = DefaultResetAfter
	}
	return &Publisher{
		mqtt:        mqtt,
		resetAfter:  resetAfter,
		now:         time.Now,
		counters:    make(map[string]int),
		lastUpdates: make(map[string]time.Time),
	}
}

// PublishRecognition implementiert processor.EventSink
func (p *Publisher) PublishRecognition(r *processor.Result) {
	if r == nil || r.Recognition == nil || !p.mqtt.IsConnected() {
		return
	}
	rec := r.Recognition
	source := r.Source
	if source == "" {
		source = "api"
	}

	if rec.Attempt.Accepted() && rec.Candidate != nil {
		ev := MatchEvent{
			Timestamp:  rec.Attempt.Timestamp,
			Name:       rec.Candidate.DisplayName,
			Label:      rec.Attempt.Label,
			Similarity: rec.Attempt.Similarity,
			Band:       string(rec.Band),
			Source:     r.Source,
			Detector:   r.Detector,
			Box:        Box{Top: r.Box.Y, Left: r.Box.X, Width: r.Box.Width, Height: r.Box.Height},
			Duration:   r.Duration.Seconds(),
		}
		topic := p.mqtt.Topic(fmt.Sprintf("%s/%s", topicMatches, Slug(ev.Name)))
		if err := p.mqtt.Publish(topic, ev); err != nil {
			log.Errorf("Failed to publish match for %s: %v", ev.Name, err)
		}
	}

	p.updateCounter(source)
}

// Run setzt ruhende Quellenzähler zurück, bis ctx endet
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.resetAfter / 6)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.resetIdle()
		}
	}
}

// Counter liefert den aktuellen Zählerstand einer Quelle
func (p *Publisher) Counter(source string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counters[source]
}

func (p *Publisher) updateCounter(source string) {
	p.mu.Lock()
	p.counters[source]++
	p.lastUpdates[source] = p.now()
	count := p.counters[source]
	p.mu.Unlock()

	p.publishCounter(source, count)
}

// resetIdle setzt Zähler ohne Aktualisierung innerhalb der Ruhezeit auf 0
func (p *Publisher) resetIdle() {
	now := p.now()
	var idle []string

	p.mu.Lock()
	for source, last := range p.lastUpdates {
		if now.Sub(last) > p.resetAfter {
			p.counters[source] = 0
			delete(p.lastUpdates, source)
			idle = append(idle, source)
		}
	}
	p.mu.Unlock()

	for _, source := range idle {
		log.Debugf("Reset recognition counter for source %s", source)
		p.publishCounter(source, 0)
	}
}

func (p *Publisher) publishCounter(source string, count int) {
	if !p.mqtt.IsConnected() {
		return
	}
	topic := p.mqtt.Topic(fmt.Sprintf("%s/%s/person", topicSources, Slug(source)))
	if err := p.mqtt.Publish(topic, fmt.Sprintf("%d", count)); err != nil {
		log.Errorf("Failed to publish counter for source %s: %v", source, err)
	}
}

// Slug macht einen Namen als MQTT-Topic-Ebene verwendbar
func Slug(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r == '+' || r == '#' || r == '/' || r == ' ' || r == '\t':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	s := strings.TrimSuffix(b.String(), "_")
	if s == "" {
		return "unknown"
	}
	return s
}
