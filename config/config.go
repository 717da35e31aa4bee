package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Model       ModelConfig       `mapstructure:"model"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	I18n        I18nConfig        `mapstructure:"i18n"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	DataDir        string   `mapstructure:"data_dir"`
	Timezone       string   `mapstructure:"timezone"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level  string `mapstructure:"level"`
	File   string `mapstructure:"file"`
	Format string `mapstructure:"format"` // "text" oder "json"
}

// DBConfig enthält Datenbankeinstellungen
type DBConfig struct {
	Driver   string `mapstructure:"driver"`   // sqlite, mysql, postgres
	File     string `mapstructure:"file"`     // für SQLite
	Username string `mapstructure:"username"` // für MySQL/PostgreSQL
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

// RecognitionConfig enthält die Parameter der Gesichtserkennung
type RecognitionConfig struct {
	Threshold     float64 `mapstructure:"threshold"` // Mindest-Ähnlichkeit in Prozent
	Comparer      string  `mapstructure:"comparer"`  // "lbph" oder "histogram"
	AutoRetrain   bool    `mapstructure:"auto_retrain"`
	Workers       int     `mapstructure:"workers"`
	CanonicalSize int     `mapstructure:"canonical_size"`
	Radius        int     `mapstructure:"radius"`
	Neighbors     int     `mapstructure:"neighbors"`
	GridX         int     `mapstructure:"grid_x"`
	GridY         int     `mapstructure:"grid_y"`
}

// ModelConfig beschreibt den Speicherort des trainierten Modells
type ModelConfig struct {
	Path string `mapstructure:"path"`
}

// DetectorConfig enthält Einstellungen für den OpenCV-Gesichtsdetektor
type DetectorConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	CascadeFile  string  `mapstructure:"cascade_file"`
	ScaleFactor  float64 `mapstructure:"scale_factor"`
	MinNeighbors int     `mapstructure:"min_neighbors"`
	MinSize      int     `mapstructure:"min_size"`     // Minimale Kantenlänge eines Gesichts in Pixeln
	DebugImages  int     `mapstructure:"debug_images"` // Anzahl gehaltener Debug-Bilder, 0 deaktiviert
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`

	// Home Assistant MQTT Discovery
	HomeAssistant bool `mapstructure:"homeassistant"`
}

// CleanupConfig enthält Bereinigungseinstellungen für das Erkennungsprotokoll
type CleanupConfig struct {
	RetentionDays int `mapstructure:"retention_days"`
	IntervalHours int `mapstructure:"interval_hours"`
}

// I18nConfig enthält Spracheinstellungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Konfigurationsdatei laden, wenn vorhanden
	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix("FACEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate prüft Wertebereiche, die zur Laufzeit nicht mehr korrigiert werden
func (c *Config) Validate() error {
	if c.Recognition.Threshold < 0 || c.Recognition.Threshold > 100 {
		return fmt.Errorf("recognition.threshold must be within [0, 100], got %v", c.Recognition.Threshold)
	}
	switch c.Recognition.Comparer {
	case "lbph", "histogram":
	default:
		return fmt.Errorf("recognition.comparer must be \"lbph\" or \"histogram\", got %q", c.Recognition.Comparer)
	}
	switch c.DB.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("db.driver must be sqlite, mysql or postgres, got %q", c.DB.Driver)
	}
	if c.Model.Path == "" {
		return fmt.Errorf("model.path must not be empty")
	}
	return nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 10)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/facegate.log")
	v.SetDefault("log.format", "text")

	// DB
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.file", "/data/facegate.db")
	v.SetDefault("db.ssl_mode", "disable")

	// Erkennung
	v.SetDefault("recognition.threshold", 50.0)
	v.SetDefault("recognition.comparer", "lbph")
	v.SetDefault("recognition.auto_retrain", true)
	v.SetDefault("recognition.workers", 0) // 0 = abhängig von der CPU-Anzahl
	v.SetDefault("recognition.canonical_size", 200)
	v.SetDefault("recognition.radius", 1)
	v.SetDefault("recognition.neighbors", 8)
	v.SetDefault("recognition.grid_x", 7)
	v.SetDefault("recognition.grid_y", 7)

	// Modell
	v.SetDefault("model.path", "/data/model/face_model.gob")

	// Detektor
	v.SetDefault("detector.enabled", false)
	v.SetDefault("detector.cascade_file", "/usr/share/opencv4/haarcascades/haarcascade_frontalface_default.xml")
	v.SetDefault("detector.scale_factor", 1.3)
	v.SetDefault("detector.min_neighbors", 5)
	v.SetDefault("detector.min_size", 30)
	v.SetDefault("detector.debug_images", 0)

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facegate")
	v.SetDefault("mqtt.topic_prefix", "facegate")
	v.SetDefault("mqtt.homeassistant", false)

	// Bereinigung
	v.SetDefault("cleanup.retention_days", 90)
	v.SetDefault("cleanup.interval_hours", 24)

	// Sprache
	v.SetDefault("i18n.default_language", "en")
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	// Datenbank-Verzeichnis (nur SQLite)
	if cfg.DB.Driver == "sqlite" && cfg.DB.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Model.Path), 0755); err != nil {
		return fmt.Errorf("failed to create model directory: %w", err)
	}

	return nil
}
