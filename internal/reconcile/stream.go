package reconcile

import (
	"bufio"
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/starford/cetus/internal/cetus"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/output"
)

// stream fetches on one goroutine and flushes batches on another. A batch
// already flushed stays flushed when a later page fails; the remainder is
// written only once the whole fetch has succeeded.
func (r *run) stream(ctx context.Context, params cetus.FetchParams) error {
	sink, err := r.newSink()
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	ch := make(chan models.Record, r.req.BatchSize)

	g.Go(func() error {
		defer close(ch)
		for rec, err := range r.d.fetcher.Fetch(gctx, params) {
			if err != nil {
				return err
			}
			select {
			case ch <- rec:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	var pending []models.Record
	g.Go(func() error {
		for rec := range ch {
			r.res.Fetched++
			if !r.wm.admit(rec) {
				continue
			}
			pending = append(pending, rec)
			if len(pending) < r.req.BatchSize {
				continue
			}
			// A failed fetch still lets full batches received before it
			// through; an interrupt does not.
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := sink.flush(pending); err != nil {
				return err
			}
			pending = nil
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sink.flush(pending); err != nil {
		return err
	}
	return sink.close()
}

// batchSink receives flushed batches in stream mode.
type batchSink interface {
	flush(batch []models.Record) error
	close() error
}

func (r *run) newSink() (batchSink, error) {
	if r.path != "" {
		return fileSink{r}, nil
	}
	bw := bufio.NewWriter(r.d.stdout)
	enc, err := output.NewEncoder(r.req.Format, bw, output.EncoderOptions{})
	if err != nil {
		return nil, err
	}
	if err := enc.Begin(); err != nil {
		return nil, err
	}
	return &stdoutSink{run: r, bw: bw, enc: enc}, nil
}

type fileSink struct{ *run }

func (s fileSink) flush(batch []models.Record) error { return s.run.flush(batch) }
func (s fileSink) close() error                      { return nil }

// stdoutSink keeps one encoder open across batches so json arrays and csv
// headers come out once.
type stdoutSink struct {
	run *run
	bw  *bufio.Writer
	enc output.Encoder
}

func (s *stdoutSink) flush(batch []models.Record) error {
	for _, rec := range batch {
		if err := s.enc.Encode(rec); err != nil {
			return err
		}
	}
	s.run.res.Written += len(batch)
	return s.bw.Flush()
}

func (s *stdoutSink) close() error {
	if err := s.enc.End(); err != nil {
		return err
	}
	return s.bw.Flush()
}
