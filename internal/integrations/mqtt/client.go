package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"facegate/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Topic-Suffixe unterhalb von mqtt.topic_prefix
const (
	TopicRecognition = "recognition"
	TopicTraining    = "training"
	TopicCommand     = "command"
	TopicStatus      = "status"
)

// Befehle auf dem Command-Topic
const (
	CommandRetrain = "retrain"
)

// CommandHandler verarbeitet Befehle, die über das Command-Topic eingehen
type CommandHandler interface {
	HandleCommand(command string, payload []byte)
}

// CommandHandlerFunc erlaubt einfache Funktionen als CommandHandler
type CommandHandlerFunc func(command string, payload []byte)

// HandleCommand implementiert CommandHandler
func (f CommandHandlerFunc) HandleCommand(command string, payload []byte) { f(command, payload) }

// Client ist der MQTT-Client für Ereignisse und Steuerbefehle
type Client struct {
	config   config.MQTTConfig
	client   mqtt.Client
	mu       sync.RWMutex
	handlers []CommandHandler
}

// NewClient erstellt einen neuen MQTT-Client
func NewClient(cfg config.MQTTConfig) *Client {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "facegate"
	}
	return &Client{
		config:   cfg,
		handlers: make([]CommandHandler, 0),
	}
}

// Topic liefert das vollständige Topic für ein Suffix
func (c *Client) Topic(suffix string) string {
	return strings.TrimSuffix(c.config.TopicPrefix, "/") + "/" + suffix
}

// RegisterHandler registriert einen neuen CommandHandler
func (c *Client) RegisterHandler(handler CommandHandler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
	log.Debug("Registered new MQTT command handler")
}

// Start startet den MQTT-Client und verbindet ihn mit dem Broker
func (c *Client) Start() error {
	if !c.config.Enabled {
		log.Info("MQTT client is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()

	brokerURL := fmt.Sprintf("tcp://%s:%d", c.config.Broker, c.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(c.config.ClientID)

	// Optionale Authentifizierung
	if c.config.Username != "" {
		opts.SetUsername(c.config.Username)
		opts.SetPassword(c.config.Password)
	}

	// Letzter Wille: Broker meldet "offline", wenn die Verbindung abbricht
	opts.SetWill(c.Topic(TopicStatus), "offline", 1, true)

	opts.SetOnConnectHandler(c.onConnectHandler)
	opts.SetConnectionLostHandler(c.connectionLostHandler)

	// Automatische Wiederverbindung
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	client := mqtt.NewClient(opts)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}

	log.Info("MQTT client connected successfully")
	return nil
}

// Stop meldet "offline" und beendet den MQTT-Client
func (c *Client) Stop() {
	if !c.IsConnected() {
		return
	}
	if err := c.PublishRetain(c.Topic(TopicStatus), "offline"); err != nil {
		log.Warnf("Failed to publish offline status: %v", err)
	}
	log.Info("Disconnecting MQTT client...")
	c.client.Disconnect(250) // 250ms Wartezeit
	log.Info("MQTT client disconnected")
}

// IsConnected prüft, ob der Client verbunden ist
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client != nil && c.client.IsConnected()
}

// onConnectHandler wird bei jeder (Wieder-)Verbindung aufgerufen
func (c *Client) onConnectHandler(client mqtt.Client) {
	log.Infof("Connected to MQTT broker at %s:%d", c.config.Broker, c.config.Port)

	if token := client.Publish(c.Topic(TopicStatus), 1, true, "online"); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish online status: %v", token.Error())
	}

	topic := c.Topic(TopicCommand)
	log.Infof("Subscribing to MQTT topic: %s", topic)
	if token := client.Subscribe(topic, 1, c.messageHandler); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to subscribe to topic %s: %v", topic, token.Error())
	} else {
		log.Infof("Successfully subscribed to topic: %s", topic)
	}
}

// connectionLostHandler wird aufgerufen, wenn die Verbindung verloren geht
func (c *Client) connectionLostHandler(_ mqtt.Client, err error) {
	log.Errorf("MQTT connection lost: %v", err)
}

// messageHandler verarbeitet eingehende MQTT-Nachrichten
func (c *Client) messageHandler(_ mqtt.Client, msg mqtt.Message) {
	c.dispatch(msg.Topic(), msg.Payload())
}

// dispatch leitet einen Befehl an alle Handler weiter
func (c *Client) dispatch(topic string, payload []byte) {
	log.Debugf("Received MQTT message on topic: %s", topic)
	if topic != c.Topic(TopicCommand) {
		return
	}

	command := ParseCommand(payload)
	if command == "" {
		log.Warnf("Ignoring empty MQTT command on %s", topic)
		return
	}
	log.WithField("command", command).Info("Received MQTT command")

	c.mu.RLock()
	handlers := append([]CommandHandler(nil), c.handlers...)
	c.mu.RUnlock()
	for _, handler := range handlers {
		go handler.HandleCommand(command, payload)
	}
}

// ParseCommand akzeptiert sowohl "retrain" als auch {"command":"retrain"}
func ParseCommand(payload []byte) string {
	trimmed := strings.TrimSpace(string(payload))
	if strings.HasPrefix(trimmed, "{") {
		var body struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal([]byte(trimmed), &body); err != nil {
			return ""
		}
		trimmed = body.Command
	}
	return strings.ToLower(strings.TrimSpace(trimmed))
}

// EncodePayload wandelt eine Payload in Bytes um; Objekte werden als JSON kodiert
func EncodePayload(payload interface{}) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, bool:
		return []byte(fmt.Sprintf("%v", p)), nil
	default:
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal payload to JSON: %w", err)
		}
		return data, nil
	}
}

// PublishMessage veröffentlicht eine Nachricht an ein MQTT-Topic
func (c *Client) PublishMessage(topic string, payload interface{}, retain bool) error {
	if !c.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}

	payloadBytes, err := EncodePayload(payload)
	if err != nil {
		return err
	}

	token := c.client.Publish(topic, 1, retain, payloadBytes)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to publish message to topic %s: %w", topic, token.Error())
	}

	log.Debugf("Published message to topic: %s", topic)
	return nil
}

// PublishRetain veröffentlicht eine Nachricht mit dem Retain-Flag
func (c *Client) PublishRetain(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, true)
}

// Publish veröffentlicht eine Nachricht ohne Retain-Flag
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishMessage(topic, payload, false)
}
