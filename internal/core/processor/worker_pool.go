package processor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrPoolClosed wird nach Shutdown für neue Jobs zurückgegeben
var ErrPoolClosed = errors.New("worker pool is shut down")

// WorkerPool verwaltet einen Pool von Worker-Goroutinen für die Bildverarbeitung
type WorkerPool struct {
	processor       *ImageProcessor
	jobs            chan *ProcessJob
	workerCount     int
	activeJobs      int
	processed       int64
	activeJobsMutex sync.Mutex
	shutdown        chan struct{}
	shutdownOnce    sync.Once
	wg              sync.WaitGroup
}

// ProcessJob repräsentiert einen Bildverarbeitungsjob
type ProcessJob struct {
	ctx      context.Context
	data     []byte
	source   string
	resultCh chan *ProcessResult // Individueller Ergebniskanal pro Job
}

// ProcessResult enthält das Ergebnis der Bildverarbeitung
type ProcessResult struct {
	Result *Result
	Err    error
}

// PoolStats beschreibt die Auslastung des Pools
type PoolStats struct {
	Workers       int   `json:"workers"`
	ActiveJobs    int   `json:"active_jobs"`
	QueueLength   int   `json:"queue_length"`
	QueueCapacity int   `json:"queue_capacity"`
	Processed     int64 `json:"processed"`
}

// NewWorkerPool erstellt einen neuen Worker-Pool. workers <= 0 wählt die Anzahl automatisch.
func NewWorkerPool(processor *ImageProcessor, workers int) *WorkerPool {
	workerCount := workers
	if workerCount <= 0 {
		// Container-bewusste Konfiguration: Verwende 75% der verfügbaren CPUs, mindestens 2
		workerCount = max(2, (runtime.NumCPU()*3)/4)
	}

	log.Infof("Initializing recognition worker pool with %d workers", workerCount)

	pool := &WorkerPool{
		processor:   processor,
		jobs:        make(chan *ProcessJob, workerCount*2), // Puffer für Jobs
		workerCount: workerCount,
		shutdown:    make(chan struct{}),
	}

	pool.startWorkers()
	return pool
}

// startWorkers startet die Worker-Goroutinen
func (p *WorkerPool) startWorkers() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go func(workerID int) {
			defer p.wg.Done()
			log.Debugf("Worker %d started", workerID)

			for {
				select {
				case job := <-p.jobs:
					p.run(workerID, job)
				case <-p.shutdown:
					log.Debugf("Worker %d received shutdown signal", workerID)
					return
				}
			}
		}(i)
	}
}

func (p *WorkerPool) run(workerID int, job *ProcessJob) {
	// Abgebrochene Anfragen nicht mehr verarbeiten
	if err := job.ctx.Err(); err != nil {
		job.resultCh <- &ProcessResult{Err: err}
		return
	}

	p.activeJobsMutex.Lock()
	p.activeJobs++
	jobCount := p.activeJobs
	p.activeJobsMutex.Unlock()

	log.Debugf("Worker %d processing image from %s (active jobs: %d)", workerID, job.source, jobCount)
	startTime := time.Now()

	result, err := p.processor.ProcessImage(job.ctx, job.data, job.source)

	p.activeJobsMutex.Lock()
	p.activeJobs--
	p.processed++
	p.activeJobsMutex.Unlock()

	// resultCh ist gepuffert, der Versand blockiert nie
	job.resultCh <- &ProcessResult{Result: result, Err: err}

	log.Debugf("Worker %d completed image processing in %v", workerID, time.Since(startTime))
}

// ProcessImage verarbeitet ein Bild über den Worker-Pool und wartet auf das Ergebnis
func (p *WorkerPool) ProcessImage(ctx context.Context, data []byte, source string) (*Result, error) {
	select {
	case <-p.shutdown:
		return nil, ErrPoolClosed
	default:
	}

	resultCh := make(chan *ProcessResult, 1)
	job := &ProcessJob{
		ctx:      ctx,
		data:     data,
		source:   source,
		resultCh: resultCh,
	}

	// Job an den Pool senden
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}

	// Auf Ergebnis warten
	select {
	case result := <-resultCh:
		return result.Result, result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.shutdown:
		return nil, ErrPoolClosed
	}
}

// ActiveJobCount gibt die Anzahl der aktuell aktiven Jobs zurück
func (p *WorkerPool) ActiveJobCount() int {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return p.activeJobs
}

// GetWorkerCount gibt die Anzahl der Worker im Pool zurück
func (p *WorkerPool) GetWorkerCount() int {
	return p.workerCount
}

// GetQueueCapacity gibt die Kapazität der Job-Queue zurück
func (p *WorkerPool) GetQueueCapacity() int {
	return cap(p.jobs)
}

// Stats liefert eine Momentaufnahme der Auslastung
func (p *WorkerPool) Stats() PoolStats {
	p.activeJobsMutex.Lock()
	defer p.activeJobsMutex.Unlock()
	return PoolStats{
		Workers:       p.workerCount,
		ActiveJobs:    p.activeJobs,
		QueueLength:   len(p.jobs),
		QueueCapacity: cap(p.jobs),
		Processed:     p.processed,
	}
}

// Shutdown fährt den Worker-Pool herunter und wartet auf laufende Jobs
func (p *WorkerPool) Shutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	p.wg.Wait()
}
