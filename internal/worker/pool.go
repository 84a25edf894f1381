package worker

import (
	"context"
	"sync"

	"subject-choices/internal/logger"
	"subject-choices/pkg/errors"

	"github.com/rs/zerolog"
)

type Job func(context.Context) error

type WorkerPool struct {
	workerCount int
	jobChan     chan Job
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewWorkerPool(workerCount int) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan Job, workerCount*2),
		log:         logger.Get().With().Str("component", "worker_pool").Logger(),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop waits for queued jobs to finish. Submit must not be called afterwards.
func (wp *WorkerPool) Stop() {
	wp.log.Info().Msg("Stopping worker pool")
	close(wp.jobChan)
	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit queues a job without blocking. It returns ErrQueueFull when the buffer is full.
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobChan <- job:
		return nil
	default:
		wp.log.Warn().Msg("Worker pool job queue full, job rejected")
		return errors.ErrQueueFull
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("Worker stopping due to context cancellation")
			return
		case job, ok := <-wp.jobChan:
			if !ok {
				log.Debug().Msg("Worker stopping due to closed job channel")
				return
			}

			if err := job(ctx); err != nil {
				log.Error().Err(err).Msg("Job execution failed")
			}
		}
	}
}
