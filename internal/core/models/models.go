package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Person repräsentiert eine eingeschriebene Person. Die ID dient als Label im Erkennungsmodell.
type Person struct {
	gorm.Model
	FirstName   string  `gorm:"not null" json:"first_name"`
	LastName    string  `gorm:"not null;index" json:"last_name"`
	Group       string  `gorm:"column:academic_group;index" json:"academic_group"`
	Description string  `json:"description"`
	Photos      []Photo `gorm:"foreignKey:PersonID;constraint:OnDelete:CASCADE;" json:"photos,omitempty"`
	PhotoCount  int64   `gorm:"-" json:"photo_count"`
}

// DisplayName liefert "Vorname Nachname"
func (p Person) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Photo ist ein Trainingsbild einer Person
type Photo struct {
	gorm.Model
	PersonID   uint   `gorm:"index;not null" json:"person_id"`
	FileName   string `json:"file_name"`
	FileFormat string `json:"file_format"` // z.B. 'png', 'jpeg'
	FileSize   int64  `json:"file_size"`
	Data       []byte `gorm:"not null" json:"-"`
}

// Ergebnisse eines Erkennungsversuchs
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
)

// RecognitionLog ist ein Eintrag im Audit-Log. PersonID ist nil bei abgelehnten Versuchen.
type RecognitionLog struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	RecognizedAt time.Time      `gorm:"index;not null" json:"recognized_at"`
	PersonID     *uint          `gorm:"index" json:"person_id"`
	Person       *Person        `gorm:"foreignKey:PersonID" json:"person,omitempty"`
	Similarity   float64        `json:"similarity"`
	Result       string         `gorm:"index;not null" json:"result"`
	Details      datatypes.JSON `gorm:"type:json;null" json:"details,omitempty"` // Distanz, Strategie, Gesichtsbox
}

// LogFilter schränkt die Abfrage des Audit-Logs ein
type LogFilter struct {
	PersonID *uint
	Result   string
	Since    time.Time
	Limit    int
	Offset   int
}

// Statistics fasst den Zustand des Einschreibungsspeichers zusammen
type Statistics struct {
	Persons       int64     `json:"persons"`
	Photos        int64     `json:"photos"`
	Attempts      int64     `json:"attempts"`
	Accepted      int64     `json:"accepted"`
	Rejected      int64     `json:"rejected"`
	LatestAttempt time.Time `json:"latest_attempt,omitempty"`
}
