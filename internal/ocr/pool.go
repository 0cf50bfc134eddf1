package ocr

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const DefaultWorkers = 4

// Pool bounds how many OCR calls run at once. Calls run on their own
// goroutine so a caller whose context ends is released immediately while the
// call finishes in the background and frees its slot.
type Pool struct {
	detector Detector
	sem      *semaphore.Weighted
	pace     *rate.Limiter
}

// NewPool wraps detector with a pool of the given size
func NewPool(detector Detector, workers int) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Pool{
		detector: detector,
		sem:      semaphore.NewWeighted(int64(workers)),
	}
}

// Throttle caps detections started per second; rps <= 0 leaves them unpaced
func (p *Pool) Throttle(rps int) *Pool {
	if rps > 0 {
		p.pace = rate.NewLimiter(rate.Limit(rps), rps)
	}
	return p
}

type result struct {
	texts []string
	err   error
}

// DetectText waits for a free worker and runs the detection on it
func (p *Pool) DetectText(ctx context.Context, imageURL string) ([]string, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire OCR worker: %w", err)
	}
	if p.pace != nil {
		if err := p.pace.Wait(ctx); err != nil {
			p.sem.Release(1)
			return nil, fmt.Errorf("failed to wait for OCR quota: %w", err)
		}
	}

	done := make(chan result, 1)
	go func() {
		defer p.sem.Release(1)
		texts, err := p.detector.DetectText(ctx, imageURL)
		done <- result{texts: texts, err: err}
	}()

	select {
	case r := <-done:
		return r.texts, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
