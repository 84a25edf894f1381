package worker

import (
	"context"
	"encoding/json"

	"subject-choices/internal/analysis"
	"subject-choices/internal/auth"
	"subject-choices/internal/logger"
	"subject-choices/internal/metrics"
	"subject-choices/internal/model"
	"subject-choices/internal/queue"
	"subject-choices/pkg/errors"

	"github.com/rs/zerolog"
)

// Processor runs one queued ingestion. *analysis.Service satisfies it.
type Processor interface {
	Process(ctx context.Context, actor auth.Actor, uploadID int64, skipReview bool) (*analysis.ProcessOutcome, error)
}

type IngestionWorker struct {
	processor  Processor
	consumer   *queue.Consumer
	workerPool *WorkerPool
	log        zerolog.Logger
}

func NewIngestionWorker(processor Processor, consumer *queue.Consumer, workerCount int) *IngestionWorker {
	return &IngestionWorker{
		processor:  processor,
		consumer:   consumer,
		workerPool: NewWorkerPool(workerCount),
		log:        logger.Get().With().Str("component", "ingestion_worker").Logger(),
	}
}

// Start consumes jobs until ctx is cancelled. The pool is stopped only after the
// consumer has returned, so no job is submitted to a closed pool.
func (w *IngestionWorker) Start(ctx context.Context) error {
	w.log.Info().Msg("Starting ingestion worker")

	w.workerPool.Start(ctx)
	err := w.consumer.Consume(ctx, w.handleMessage)

	w.log.Info().Msg("Stopping ingestion worker")
	w.workerPool.Stop()
	return err
}

// handleMessage rejects undecodable jobs and jobs the pool cannot take, which
// sends them to the dead-letter list.
func (w *IngestionWorker) handleMessage(ctx context.Context, data []byte) error {
	var job model.IngestionJob
	if err := json.Unmarshal(data, &job); err != nil {
		metrics.IngestionJobs.WithLabelValues("invalid").Inc()
		w.log.Error().Err(err).Msg("Failed to unmarshal ingestion job")
		return err
	}

	w.log.Info().Int64("upload_id", job.UploadID).Str("actor_id", job.ActorID).Msg("Processing ingestion job")

	return w.workerPool.Submit(func(ctx context.Context) error {
		return w.process(ctx, job)
	})
}

func (w *IngestionWorker) process(ctx context.Context, job model.IngestionJob) error {
	log := w.log.With().Int64("upload_id", job.UploadID).Logger()

	outcome, err := w.processor.Process(ctx, auth.Actor{ID: job.ActorID}, job.UploadID, true)
	if err != nil {
		var already errors.AlreadyProcessedError
		if errors.As(err, &already) {
			metrics.IngestionJobs.WithLabelValues("duplicate").Inc()
			log.Info().Msg("Upload already processed, job skipped")
			return nil
		}
		metrics.IngestionJobs.WithLabelValues("failed").Inc()
		return err
	}

	metrics.IngestionJobs.WithLabelValues("ok").Inc()
	if outcome.Result != nil {
		log.Info().Int("records", outcome.Result.RecordCount).Msg("Queued ingestion complete")
	}
	return nil
}
