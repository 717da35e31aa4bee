package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"facegate/internal/core/models"
	"facegate/internal/recognition"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrNotFound wird von Änderungsoperationen zurückgegeben, wenn der Datensatz fehlt.
// Lesende Methoden liefern stattdessen nil, nil.
var ErrNotFound = errors.New("record not found")

// Repository definiert die Schnittstelle für die Datenbank-Operationen
type Repository interface {
	// Person-Methoden
	CreatePerson(person *models.Person) error
	GetPersonByID(id uint) (*models.Person, error)
	GetPersons(limit, offset int) ([]models.Person, int64, error)
	SavePerson(person *models.Person) error
	DeletePerson(id uint) error

	// Photo-Methoden
	AddPhoto(photo *models.Photo) error
	GetPhotoByID(id uint) (*models.Photo, error)
	GetPhotosByPersonID(personID uint) ([]models.Photo, error)
	DeletePhoto(id uint) error

	// Log-Methoden
	GetLogs(filter models.LogFilter) ([]models.RecognitionLog, int64, error)
	DeleteLogsBefore(cutoff time.Time) (int64, error)

	// Statistik-Methoden
	GetStatistics() (models.Statistics, error)

	// Anbindung an die Erkennung
	recognition.EnrollmentSource
	recognition.AttemptLog
}

// GormRepository implementiert die Repository-Schnittstelle für alle GORM-Treiber
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository erstellt eine neue Repository-Instanz
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// DB gibt die zugrunde liegende Verbindung zurück
func (r *GormRepository) DB() *gorm.DB {
	return r.db
}

// Person-Methoden

// CreatePerson legt eine Person an
func (r *GormRepository) CreatePerson(person *models.Person) error {
	return r.db.Create(person).Error
}

// GetPersonByID holt eine Person anhand ihrer ID
func (r *GormRepository) GetPersonByID(id uint) (*models.Person, error) {
	var person models.Person
	result := r.db.First(&person, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	if err := r.db.Model(&models.Photo{}).Where("person_id = ?", id).Count(&person.PhotoCount).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

// GetPersons holt Personen mit Pagination, sortiert nach Nachname
func (r *GormRepository) GetPersons(limit, offset int) ([]models.Person, int64, error) {
	var persons []models.Person
	var total int64

	if err := r.db.Model(&models.Person{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query := r.db.Order("last_name, first_name, id")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&persons).Error; err != nil {
		return nil, 0, err
	}
	if len(persons) == 0 {
		return persons, total, nil
	}

	// Fotoanzahl in einer Abfrage nachladen
	ids := make([]uint, len(persons))
	for i, p := range persons {
		ids[i] = p.ID
	}
	var counts []struct {
		PersonID uint
		N        int64
	}
	if err := r.db.Model(&models.Photo{}).
		Select("person_id, COUNT(*) AS n").
		Where("person_id IN ?", ids).
		Group("person_id").
		Scan(&counts).Error; err != nil {
		return nil, 0, err
	}
	byPerson := make(map[uint]int64, len(counts))
	for _, c := range counts {
		byPerson[c.PersonID] = c.N
	}
	for i := range persons {
		persons[i].PhotoCount = byPerson[persons[i].ID]
	}
	return persons, total, nil
}

// SavePerson aktualisiert die Stammdaten einer Person
func (r *GormRepository) SavePerson(person *models.Person) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Person
		if err := tx.First(&existing, person.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		// MySQL meldet bei unveränderten Werten 0 betroffene Zeilen, daher vorher prüfen
		return tx.Model(&existing).Updates(map[string]interface{}{
			"first_name":     person.FirstName,
			"last_name":      person.LastName,
			"academic_group": person.Group,
			"description":    person.Description,
		}).Error
	})
}

// DeletePerson löscht eine Person samt Fotos und Erkennungsprotokoll in einer Transaktion
func (r *GormRepository) DeletePerson(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("person_id = ?", id).Delete(&models.RecognitionLog{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("person_id = ?", id).Delete(&models.Photo{}).Error; err != nil {
			return err
		}
		result := tx.Unscoped().Delete(&models.Person{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// Photo-Methoden

// AddPhoto speichert ein Foto zu einer bestehenden Person
func (r *GormRepository) AddPhoto(photo *models.Photo) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.Person{}).Where("id = ?", photo.PersonID).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if photo.FileSize == 0 {
			photo.FileSize = int64(len(photo.Data))
		}
		return tx.Create(photo).Error
	})
}

// GetPhotoByID holt ein Foto inklusive Bilddaten
func (r *GormRepository) GetPhotoByID(id uint) (*models.Photo, error) {
	var photo models.Photo
	result := r.db.First(&photo, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &photo, nil
}

// GetPhotosByPersonID listet die Fotos einer Person ohne Bilddaten
func (r *GormRepository) GetPhotosByPersonID(personID uint) ([]models.Photo, error) {
	var photos []models.Photo
	result := r.db.Omit("data").Where("person_id = ?", personID).Order("id").Find(&photos)
	if result.Error != nil {
		return nil, result.Error
	}
	return photos, nil
}

// DeletePhoto löscht ein Foto endgültig
func (r *GormRepository) DeletePhoto(id uint) error {
	result := r.db.Unscoped().Delete(&models.Photo{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Log-Methoden

// GetLogs liefert Protokolleinträge, neueste zuerst
func (r *GormRepository) GetLogs(filter models.LogFilter) ([]models.RecognitionLog, int64, error) {
	var logs []models.RecognitionLog
	var total int64

	query := r.db.Model(&models.RecognitionLog{})
	if filter.PersonID != nil {
		query = query.Where("person_id = ?", *filter.PersonID)
	}
	if filter.Result != "" {
		query = query.Where("result = ?", filter.Result)
	}
	if !filter.Since.IsZero() {
		query = query.Where("recognized_at >= ?", filter.Since)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Preload("Person").Order("recognized_at DESC, id DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}

// DeleteLogsBefore entfernt Protokolleinträge, die älter als cutoff sind
func (r *GormRepository) DeleteLogsBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("recognized_at < ?", cutoff).Delete(&models.RecognitionLog{})
	return result.RowsAffected, result.Error
}

// Statistik-Methoden

// GetStatistics gibt Statistiken über die gespeicherten Daten zurück
func (r *GormRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.Person{}).Count(&stats.Persons).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.Photo{}).Count(&stats.Photos).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.RecognitionLog{}).Count(&stats.Attempts).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.RecognitionLog{}).Where("result = ?", models.ResultAccepted).Count(&stats.Accepted).Error; err != nil {
		return stats, err
	}
	stats.Rejected = stats.Attempts - stats.Accepted

	// Ermittle den neuesten Versuch
	var latest models.RecognitionLog
	if err := r.db.Order("recognized_at DESC").First(&latest).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return stats, err
		}
	} else {
		stats.LatestAttempt = latest.RecognizedAt
	}

	return stats, nil
}

// Anbindung an die Erkennung

// EnrollmentPhotos liefert alle Fotos aller Personen; das Label ist die Personen-ID
func (r *GormRepository) EnrollmentPhotos(ctx context.Context) ([]recognition.EnrolledPhoto, error) {
	var photos []models.Photo
	err := r.db.WithContext(ctx).
		Joins("JOIN people ON people.id = photos.person_id AND people.deleted_at IS NULL").
		Order("photos.person_id, photos.id").
		Find(&photos).Error
	if err != nil {
		return nil, err
	}

	out := make([]recognition.EnrolledPhoto, 0, len(photos))
	for _, p := range photos {
		out = append(out, recognition.EnrolledPhoto{Label: int(p.PersonID), Data: p.Data})
	}
	return out, nil
}

// EnrollmentNames liefert die Anzeigenamen aller Personen
func (r *GormRepository) EnrollmentNames(ctx context.Context) (map[int]string, error) {
	var persons []models.Person
	if err := r.db.WithContext(ctx).Select("id", "first_name", "last_name").Find(&persons).Error; err != nil {
		return nil, err
	}
	names := make(map[int]string, len(persons))
	for _, p := range persons {
		names[int(p.ID)] = p.DisplayName()
	}
	return names, nil
}

type attemptDetails struct {
	Distance float64 `json:"distance"`
	Band     string  `json:"band"`
	Label    int     `json:"label,omitempty"`
}

// AppendAttempt schreibt einen Erkennungsversuch ins Protokoll. Gehört das Label zu
// keiner Person mehr, wird es nur in den Details vermerkt.
func (r *GormRepository) AppendAttempt(ctx context.Context, a recognition.Attempt) error {
	entry := models.RecognitionLog{
		RecognizedAt: a.Timestamp,
		Similarity:   a.Similarity,
		Result:       string(a.Outcome),
	}
	details := attemptDetails{Distance: a.Distance, Band: string(recognition.BandFor(a.Similarity))}

	tx := r.db.WithContext(ctx)
	if a.Label > 0 {
		var n int64
		if err := tx.Model(&models.Person{}).Where("id = ?", a.Label).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			id := uint(a.Label)
			entry.PersonID = &id
		} else {
			details.Label = a.Label
		}
	}

	raw, err := json.Marshal(details)
	if err != nil {
		return err
	}
	entry.Details = datatypes.JSON(raw)
	return tx.Create(&entry).Error
}
