package workers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/camden-git/fleetinspectbackend/logger"
	"github.com/camden-git/fleetinspectbackend/services"
)

// JobType constants
const (
	JobProcess   = "process"
	JobReprocess = "reprocess"
)

type AnalysisJob struct {
	PhotoID uuid.UUID
	Type    string
}

// PhotoProcessor is the part of the orchestrator the queue drives.
type PhotoProcessor interface {
	ProcessPhoto(ctx context.Context, photoID uuid.UUID) (*services.PhotoOutcome, error)
	ReprocessPhoto(ctx context.Context, photoID uuid.UUID) (*services.PhotoOutcome, error)
}

// AnalysisQueue runs analysis jobs on a fixed worker pool. A photo id is
// pending from QueueJob until its job finishes, so two workers never handle
// the same photo at once.
type AnalysisQueue struct {
	log       *logger.Logger
	JobQueue  chan AnalysisJob
	processor PhotoProcessor
	Wg        sync.WaitGroup
	StopChan  chan struct{}
	Pending   map[uuid.UUID]bool
	Mutex     sync.Mutex
}

func NewAnalysisQueue(log *logger.Logger, processor PhotoProcessor, queueSize, numWorkers int) *AnalysisQueue {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	q := &AnalysisQueue{
		log:       log.With("service", "AnalysisQueue"),
		JobQueue:  make(chan AnalysisJob, queueSize),
		processor: processor,
		StopChan:  make(chan struct{}),
		Pending:   make(map[uuid.UUID]bool),
	}
	q.Wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go q.worker(i)
	}
	q.log.Info("Started analysis workers", "workers", numWorkers, "queue_size", queueSize)
	return q
}

func (q *AnalysisQueue) worker(id int) {
	defer q.Wg.Done()
	for {
		select {
		case job, ok := <-q.JobQueue:
			if !ok {
				q.log.Debug("Analysis worker stopping: job queue closed", "worker", id)
				return
			}
			q.run(id, job)
			q.Mutex.Lock()
			delete(q.Pending, job.PhotoID)
			q.Mutex.Unlock()

		case <-q.StopChan:
			q.log.Debug("Analysis worker stopping: stop signal received", "worker", id)
			return
		}
	}
}

// run executes one job. In-flight work is not cancelled by Stop; the vision
// call carries its own timeout.
func (q *AnalysisQueue) run(workerID int, job AnalysisJob) {
	ctx := context.Background()
	var (
		outcome *services.PhotoOutcome
		err     error
	)
	switch job.Type {
	case JobProcess:
		outcome, err = q.processor.ProcessPhoto(ctx, job.PhotoID)
	case JobReprocess:
		outcome, err = q.processor.ReprocessPhoto(ctx, job.PhotoID)
	default:
		q.log.Error("Unknown job type", "worker", workerID, "type", job.Type, "photo_id", job.PhotoID)
		return
	}
	if err != nil {
		q.log.Warn("Analysis job failed", "worker", workerID, "type", job.Type, "photo_id", job.PhotoID, "error", err)
		return
	}
	q.log.Debug("Analysis job done", "worker", workerID, "type", job.Type, "photo_id", job.PhotoID, "cached", outcome.Cached)
}

// IsPending reports whether a job for the photo is queued or running.
func (q *AnalysisQueue) IsPending(photoID uuid.UUID) bool {
	q.Mutex.Lock()
	defer q.Mutex.Unlock()
	return q.Pending[photoID]
}

// QueueJob queues a job unless one is already pending for the photo or the queue is full.
func (q *AnalysisQueue) QueueJob(job AnalysisJob) bool {
	q.Mutex.Lock()
	if q.Pending[job.PhotoID] {
		q.Mutex.Unlock()
		return false
	}
	q.Pending[job.PhotoID] = true
	q.Mutex.Unlock()

	select {
	case q.JobQueue <- job:
		q.log.Debug("Queued analysis job", "type", job.Type, "photo_id", job.PhotoID)
		return true
	default:
		q.log.Warn("Analysis job queue full", "type", job.Type, "photo_id", job.PhotoID)
		q.Mutex.Lock()
		delete(q.Pending, job.PhotoID)
		q.Mutex.Unlock()
		return false
	}
}

func (q *AnalysisQueue) Stop() {
	q.log.Info("Stopping analysis workers")
	close(q.StopChan)
	q.Wg.Wait()
	q.log.Info("All analysis workers stopped")
}
