package db

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"facegate/config"
	"facegate/internal/core/models"

	"github.com/glebarez/sqlite" // Pure Go SQLite Treiber
	log "github.com/sirupsen/logrus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB ist die globale Datenbankverbindung
var DB *gorm.DB

// Initialize öffnet die konfigurierte Datenbank, migriert das Schema und setzt DB
func Initialize(cfg *config.Config) error {
	conn, err := Open(cfg.DB)
	if err != nil {
		return err
	}
	DB = conn
	return nil
}

// Open verbindet sich mit der Datenbank und führt die Auto-Migrationen aus
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	// Sicherstellen, dass das Verzeichnis für die Datenbankdatei existiert
	if driver(cfg) == "sqlite" && cfg.File != "" {
		dbDir := filepath.Dir(cfg.File)
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			log.Errorf("Failed to create database directory '%s': %v", dbDir, err)
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Konfiguration des GORM-Loggers
	gormLogger := logger.New(
		log.StandardLogger(), // Verwende den konfigurierten logrus-Logger
		logger.Config{
			SlowThreshold:             time.Second * 2, // SQL-Abfragen langsamer als 2 Sekunden werden geloggt
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	log.WithFields(log.Fields{"driver": driver(cfg), "target": target(cfg)}).Info("Connecting to database")

	conn, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger})
	if err != nil {
		log.Errorf("Failed to connect to database: %v", err)
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database connection: %w", err)
	}
	if driver(cfg) == "sqlite" {
		// SQLite verträgt nur einen Schreiber gleichzeitig
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("Database connection established successfully")

	if err := Migrate(conn); err != nil {
		return nil, err
	}
	return conn, nil
}

// Migrate legt die Tabellen an bzw. aktualisiert sie
func Migrate(conn *gorm.DB) error {
	log.Info("Running database migrations...")
	if err := conn.AutoMigrate(
		&models.Person{},
		&models.Photo{},
		&models.RecognitionLog{},
	); err != nil {
		log.Errorf("Database migration failed: %v", err)
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Info("Database migrations completed successfully")
	return nil
}

// Dialector wählt den GORM-Treiber anhand von db.driver
func Dialector(cfg config.DBConfig) (gorm.Dialector, error) {
	switch driver(cfg) {
	case "sqlite":
		if cfg.File == "" {
			return nil, fmt.Errorf("db.file is required for sqlite")
		}
		// Fremdschlüssel sind in SQLite standardmäßig deaktiviert
		return sqlite.Open(cfg.File + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"), nil
	case "mysql":
		return mysql.Open(MySQLDSN(cfg)), nil
	case "postgres":
		return postgres.Open(PostgresDSN(cfg)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// MySQLDSN baut den Verbindungsstring für MySQL
func MySQLDSN(cfg config.DBConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Host, port, cfg.Name)
}

// PostgresDSN baut den Verbindungsstring für PostgreSQL
func PostgresDSN(cfg config.DBConfig) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		cfg.Host, port, cfg.Username, cfg.Password, cfg.Name, sslMode)
}

// GetDB gibt die initialisierte GORM-DB-Instanz zurück
func GetDB() (*gorm.DB, error) {
	if DB == nil {
		return nil, fmt.Errorf("database is not initialized")
	}
	return DB, nil
}

func driver(cfg config.DBConfig) string {
	if cfg.Driver == "" {
		return "sqlite"
	}
	return cfg.Driver
}

func target(cfg config.DBConfig) string {
	if driver(cfg) == "sqlite" {
		return cfg.File
	}
	return fmt.Sprintf("%s:%d/%s", cfg.Host, cfg.Port, cfg.Name)
}
