package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/models"
	"github.com/kacperjurak/sipfit/pkg/profiling"
)

// Pool manages concurrent fit workers
type Pool struct {
	jobs         chan models.WorkItem
	webhookQueue chan models.WebhookItem
	workers      int
	shutdown     chan struct{}
	wg           sync.WaitGroup
	sendWG       sync.WaitGroup
	processor    ProcessorFunc
	sender       Sender
	quiet        bool

	ctx    context.Context
	cancel context.CancelFunc
}

// ProcessorFunc defines the signature for fit processing
type ProcessorFunc func(ctx context.Context, job models.WorkItem) (models.Outcome, error)

// Sender delivers webhook payloads
type Sender interface {
	Send(ctx context.Context, item models.WebhookItem) error
}

// Options holds configuration for creating a new worker pool
type Options struct {
	Workers   int
	Processor ProcessorFunc
	// Sender may be nil, queued webhooks are then only logged.
	Sender Sender
	Quiet  bool
}

// New creates a new worker pool with specified configuration
func New(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	// do not block queueing new jobs even if the workers are already busy
	pool := &Pool{
		jobs:         make(chan models.WorkItem, opts.Workers*2),
		webhookQueue: make(chan models.WebhookItem, opts.Workers*4),
		workers:      opts.Workers,
		shutdown:     make(chan struct{}),
		processor:    opts.Processor,
		sender:       opts.Sender,
		quiet:        opts.Quiet,
		ctx:          ctx,
		cancel:       cancel,
	}

	pool.start()
	return pool
}

// start initializes and starts all workers
func (p *Pool) start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.wg.Add(1)
	go p.webhookProcessor()

	log.Printf("🔧 Worker pool started with %d workers", p.workers)
}

// worker processes fit jobs from the jobs channel
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			result := p.processJob(id, job)
			if job.Reply != nil {
				job.Reply <- result
			}

		case <-p.shutdown:
			return
		}
	}
}

// processJob runs the processor and wraps its outcome
func (p *Pool) processJob(id int, job models.WorkItem) models.WorkResult {
	var prof *profiling.WorkerProfiler
	if !p.quiet {
		prof = profiling.NewWorkerProfiler(id, "fit "+job.RequestID)
	}

	startTime := time.Now()
	outcome, err := p.processor(p.ctx, job)
	processingTime := time.Since(startTime)

	if prof != nil {
		prof.Finish()
	}
	if err != nil {
		log.Printf("❌ Fit %s failed: %v", job.RequestID, err)
	}

	topology := ""
	if job.Config != nil {
		topology = job.Config.Topology
	}
	return models.WorkResult{
		ID:             job.ID,
		RequestID:      job.RequestID,
		BatchID:        job.BatchID,
		Iteration:      job.Iteration,
		Outcome:        outcome,
		Err:            err,
		ProcessingTime: processingTime,
		Success:        err == nil && outcome.Fit.Status != sipfit.ERROR,
		Spectrum:       job.Spectrum,
		Topology:       topology,
	}
}

// webhookProcessor hands queued webhooks to the sender
func (p *Pool) webhookProcessor() {
	defer p.wg.Done()

	for {
		select {
		case webhook := <-p.webhookQueue:
			// do not block workers on slow receivers
			p.sendWG.Add(1)
			go p.sendWebhook(webhook)

		case <-p.shutdown:
			return
		}
	}
}

func (p *Pool) sendWebhook(webhook models.WebhookItem) {
	defer p.sendWG.Done()
	if p.sender == nil {
		log.Printf("Processing webhook for %s", webhook.RequestID)
		return
	}
	if err := p.sender.Send(p.ctx, webhook); err != nil {
		log.Printf("⚠️  Webhook for %s failed: %v", webhook.RequestID, err)
	}
}

// SubmitJob submits a job to the worker pool. The result is delivered on
// job.Reply when it is set. It returns false when the pool is shut down and
// the job was dropped.
func (p *Pool) SubmitJob(job models.WorkItem) bool {
	select {
	case <-p.shutdown:
		log.Printf("⚠️  Pool shut down, dropping job %s", job.RequestID)
		return false
	default:
	}

	select {
	case p.jobs <- job:
		return true
	default:
		log.Printf("⚠️  Worker pool jobs channel full, job may be delayed")
		select {
		case p.jobs <- job:
			return true
		case <-p.shutdown:
			log.Printf("⚠️  Pool shut down, dropping job %s", job.RequestID)
			return false
		}
	}
}

// Done is closed when Shutdown starts. Jobs still queued at that point are
// never replied to.
func (p *Pool) Done() <-chan struct{} {
	return p.shutdown
}

// QueueWebhook queues a webhook for async processing
func (p *Pool) QueueWebhook(webhook models.WebhookItem) {
	select {
	case p.webhookQueue <- webhook:
	default:
		log.Printf("⚠️  Webhook queue full, dropping webhook for %s", webhook.RequestID)
	}
}

// Shutdown cancels running fits, stops the workers and waits for in-flight
// webhooks
func (p *Pool) Shutdown() {
	log.Printf("🛑 Shutting down worker pool...")
	p.cancel()
	close(p.shutdown)
	p.wg.Wait()
	p.sendWG.Wait()
	log.Printf("✅ Worker pool shutdown complete")
}
