package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Detector counts faces in a frame before it is worth submitting.
type Detector interface {
	CountFaces(ctx context.Context, frame []byte) (int, error)
}

// EveryFrame treats every frame as containing a face, leaving detection to
// the server.
type EveryFrame struct{}

// CountFaces implements Detector.
func (EveryFrame) CountFaces(context.Context, []byte) (int, error) { return 1, nil }

// Stats counts what the loop did with its frames.
type Stats struct {
	Frames    int64
	Submitted int64
	Skipped   int64
}

// Loop pulls frames at a fixed pace and submits those with faces, one at a time.
type Loop struct {
	source    Source
	detector  Detector
	submitter Submitter
	guard     *Guard
	limiter   *rate.Limiter
	onResult  func(*Response, error)

	frames    atomic.Int64
	submitted atomic.Int64
	skipped   atomic.Int64
}

// NewLoop creates a loop reading at most fps frames per second. onResult, if
// set, receives every submission outcome.
func NewLoop(src Source, det Detector, sub Submitter, fps float64, onResult func(*Response, error)) *Loop {
	if fps <= 0 {
		fps = 1
	}
	return &Loop{
		source:    src,
		detector:  det,
		submitter: sub,
		guard:     NewGuard(),
		limiter:   rate.NewLimiter(rate.Limit(fps), 1),
		onResult:  onResult,
	}
}

// Stats returns a snapshot of the counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Frames:    l.frames.Load(),
		Submitted: l.submitted.Load(),
		Skipped:   l.skipped.Load(),
	}
}

// Run processes frames until ctx is done, the source is exhausted, or the
// source fails. Only a source failure is returned, wrapped in ErrCapture.
// Submissions in flight are allowed to finish before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil
		}

		frame, err := l.source.Next(ctx)
		switch {
		case errors.Is(err, io.EOF):
			log.Printf("Frame source exhausted")
			return nil
		case ctx.Err() != nil:
			return nil
		case err != nil:
			if errors.Is(err, ErrCapture) {
				return err
			}
			return fmt.Errorf("%w: %v", ErrCapture, err)
		}
		l.frames.Add(1)

		faces, err := l.detector.CountFaces(ctx, frame)
		if err != nil {
			log.Printf("Face detection failed: %v", err)
			continue
		}
		if faces == 0 {
			continue
		}

		if !l.guard.TryAcquire() {
			l.skipped.Add(1)
			continue
		}
		l.submitted.Add(1)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.guard.Release()
			resp, err := l.submitter.Submit(context.WithoutCancel(ctx), frame)
			l.report(resp, err)
		}()
	}
}

func (l *Loop) report(resp *Response, err error) {
	if l.onResult != nil {
		l.onResult(resp, err)
		return
	}
	switch {
	case err != nil:
		log.Printf("Submission failed: %v", err)
	case resp.OK():
		log.Printf("%s (%s %s)", resp.Message, resp.EmpID, resp.EmployeeName)
	default:
		log.Printf("Rejected [%s]: %s", resp.Error, resp.Message)
	}
}
