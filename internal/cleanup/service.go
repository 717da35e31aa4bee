package cleanup

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogPruner löscht Protokolleinträge vor einem Stichtag
type LogPruner interface {
	DeleteLogsBefore(cutoff time.Time) (int64, error)
}

// Service handles the automatic cleanup of old recognition logs.
type Service struct {
	store         LogPruner
	retentionDays int
	checkInterval time.Duration
	now           func() time.Time
	stopChan      chan struct{} // Channel to signal stopping the background routine
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// NewService creates a new cleanup service. It returns nil when cleanup is disabled.
func NewService(store LogPruner, retentionDays int, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic log cleanup disabled (retention_days <= 0).")
		return nil
	}
	if store == nil {
		log.Error("Cannot initialize cleanup service: log store is nil")
		return nil
	}
	if checkInterval <= 0 {
		checkInterval = 24 * time.Hour
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, CheckInterval=%s", retentionDays, checkInterval)
	return &Service{
		store:         store,
		retentionDays: retentionDays,
		checkInterval: checkInterval,
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup runs one cycle immediately and then one per interval.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return // Service was not initialized (cleanup disabled)
	}
	log.Info("Starting background cleanup routine...")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()

		log.Info("Running initial cleanup check on startup...")
		s.RunCleanupCycle()

		for {
			select {
			case <-ticker.C:
				log.Info("Running scheduled cleanup cycle...")
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine.")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop and waits for it.
func (s *Service) StopBackgroundCleanup() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
}

// RunCleanupCycle deletes log entries older than the retention period and
// returns how many were removed.
func (s *Service) RunCleanupCycle() int64 {
	if s == nil || s.retentionDays <= 0 {
		log.Debug("Skipping cleanup cycle: service not initialized or cleanup disabled.")
		return 0
	}

	cutoffTime := s.now().AddDate(0, 0, -s.retentionDays)
	log.Infof("Cleanup: Deleting recognition logs older than %s", cutoffTime.Format(time.RFC3339))

	deleted, err := s.store.DeleteLogsBefore(cutoffTime)
	if err != nil {
		log.Errorf("Cleanup: Failed to delete old recognition logs: %v", err)
		return 0
	}

	log.Infof("Cleanup cycle finished. Deleted %d recognition log(s)", deleted)
	return deleted
}
