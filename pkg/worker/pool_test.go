package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kacperjurak/sipfit"
	"github.com/kacperjurak/sipfit/pkg/models"
)

type recorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *recorder) Send(_ context.Context, item models.WebhookItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, item.RequestID)
	return nil
}

func TestPoolDeliversResults(t *testing.T) {
	errOdd := errors.New("odd")
	pool := New(Options{
		Workers: 3,
		Quiet:   true,
		Processor: func(_ context.Context, job models.WorkItem) (models.Outcome, error) {
			if job.Iteration%2 == 1 {
				return models.Outcome{}, errOdd
			}
			return models.Outcome{Fit: sipfit.FitResult{Status: sipfit.OK, ChiSq: float64(job.Iteration)}}, nil
		},
	})
	defer pool.Shutdown()

	const n = 10
	reply := make(chan models.WorkResult, n)
	for i := 0; i < n; i++ {
		pool.SubmitJob(models.WorkItem{ID: i, Iteration: i, Reply: reply})
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		select {
		case r := <-reply:
			seen[r.Iteration] = true
			if odd := r.Iteration%2 == 1; odd != !r.Success {
				t.Errorf("iteration %d: success = %v", r.Iteration, r.Success)
			}
			if r.Success && r.Outcome.Fit.ChiSq != float64(r.Iteration) {
				t.Errorf("iteration %d: wrong outcome %v", r.Iteration, r.Outcome.Fit.ChiSq)
			}
			if !r.Success && !errors.Is(r.Err, errOdd) {
				t.Errorf("iteration %d: err = %v", r.Iteration, r.Err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for results")
		}
	}
	if len(seen) != n {
		t.Errorf("got %d distinct results", len(seen))
	}
}

func TestPoolSendsWebhooks(t *testing.T) {
	rec := &recorder{}
	pool := New(Options{Workers: 1, Quiet: true, Sender: rec})
	pool.QueueWebhook(models.WebhookItem{RequestID: "a"})
	pool.QueueWebhook(models.WebhookItem{RequestID: "b"})

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.sent)
		rec.mu.Unlock()
		if n == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sent %d webhooks", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
	pool.Shutdown()
}

func TestPoolShutdownCancelsContext(t *testing.T) {
	started := make(chan struct{})
	pool := New(Options{
		Workers: 1,
		Quiet:   true,
		Processor: func(ctx context.Context, _ models.WorkItem) (models.Outcome, error) {
			close(started)
			<-ctx.Done()
			return models.Outcome{}, ctx.Err()
		},
	})
	reply := make(chan models.WorkResult, 1)
	pool.SubmitJob(models.WorkItem{Reply: reply})
	<-started
	pool.Shutdown()

	r := <-reply
	if !errors.Is(r.Err, context.Canceled) {
		t.Errorf("err = %v", r.Err)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	pool := New(Options{
		Workers: 1,
		Quiet:   true,
		Processor: func(context.Context, models.WorkItem) (models.Outcome, error) {
			return models.Outcome{}, nil
		},
	})
	pool.Shutdown()

	select {
	case <-pool.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
	if pool.SubmitJob(models.WorkItem{RequestID: "late"}) {
		t.Error("SubmitJob accepted a job after Shutdown")
	}
}
