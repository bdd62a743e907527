package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/photolog/backend/internal/export"
	"github.com/photolog/backend/shared/rabbitmq"
)

// Config holds worker service configuration
type Config struct {
	Logger          *slog.Logger
	RabbitClient    *rabbitmq.Client
	Pipeline        *export.Pipeline
	Jobs            export.Store
	Blobs           export.BlobStore
	Concurrency     int
	PrefetchCount   int
	JobTimeout      time.Duration
	JanitorInterval time.Duration
}

// Worker consumes export job messages and executes them on a bounded pool of
// goroutines. Concurrency is capped so blob store and photo store load stays
// bounded.
type Worker struct {
	logger          *slog.Logger
	rabbitClient    *rabbitmq.Client
	pipeline        *export.Pipeline
	jobs            export.Store
	blobs           export.BlobStore
	concurrency     int
	prefetchCount   int
	jobTimeout      time.Duration
	janitorInterval time.Duration
	workerID        string
	jobsChan        chan *jobMessage
	stopChan        chan struct{}
	wg              sync.WaitGroup
}

// jobMessage is one dispatched queue delivery
type jobMessage struct {
	JobID       string
	DeliveryTag uint64
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = concurrency
	}

	return &Worker{
		logger:          cfg.Logger,
		rabbitClient:    cfg.RabbitClient,
		pipeline:        cfg.Pipeline,
		jobs:            cfg.Jobs,
		blobs:           cfg.Blobs,
		concurrency:     concurrency,
		prefetchCount:   prefetch,
		jobTimeout:      cfg.JobTimeout,
		janitorInterval: cfg.JanitorInterval,
		workerID:        "export-worker-" + uuid.New().String()[:8],
		jobsChan:        make(chan *jobMessage),
		stopChan:        make(chan struct{}),
	}
}

// Start begins consuming and processing export jobs. Blocks until the
// context is canceled or the delivery channel closes.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting export worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to set up consumer: %w", err)
	}

	w.spawnWorkerPool(ctx)

	if w.janitorInterval > 0 {
		w.wg.Add(1)
		go w.janitorLoop(ctx)
	}

	w.startMessageDispatcher(ctx, deliveries)
	return nil
}

// Stop gracefully stops the worker pool
func (w *Worker) Stop() {
	w.logger.Info("Stopping export worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Export worker stopped")
}
