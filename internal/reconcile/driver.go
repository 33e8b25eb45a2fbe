// Package reconcile runs incremental queries: it resolves the lower bound
// from the stored marker, drains the fetch, reconciles new records into the
// output, and only then advances the marker.
package reconcile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"time"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/cetus"
	"github.com/starford/cetus/internal/markers"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/output"
)

// Fetcher yields the records of one query in arrival order.
type Fetcher interface {
	Fetch(ctx context.Context, p cetus.FetchParams) iter.Seq2[models.Record, error]
}

// Driver coordinates the marker store, the fetcher and the writer.
type Driver struct {
	markers markers.Store
	fetcher Fetcher
	writer  *output.Writer
	stdout  io.Writer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithStdout sets where non-file output goes.
func WithStdout(w io.Writer) Option {
	return func(d *Driver) { d.stdout = w }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// New returns a Driver.
func New(store markers.Store, fetcher Fetcher, writer *output.Writer, opts ...Option) *Driver {
	d := &Driver{
		markers: store,
		fetcher: fetcher,
		writer:  writer,
		stdout:  os.Stdout,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// run holds the mutable state of one Run call.
type run struct {
	d    *Driver
	req  Request
	res  Result
	wm   *watermark
	path string
	// appendMode is true when the first flush merges into existing content.
	appendMode bool
	flushed    bool
}

func (r *run) enter(s State) {
	r.res.State = s
	r.res.Transitions = append(r.res.Transitions, s)
	r.d.logger.Debug("reconcile: state", slog.String("state", s.String()))
}

func (r *run) abort(err error) (Result, error) {
	r.enter(StateAborted)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if !errors.Is(err, apperr.ErrCancelled) {
			err = fmt.Errorf("%w: %w", apperr.ErrCancelled, err)
		}
	}
	return r.res, err
}

func (r *run) warn(msg string, attrs ...slog.Attr) {
	r.res.Warnings = append(r.res.Warnings, msg)
	args := make([]any, len(attrs))
	for i, a := range attrs {
		args[i] = a
	}
	r.d.logger.Warn("reconcile: "+msg, args...)
}

// Run executes one incremental run. The marker is saved only after output
// has been durably written, and never on a failed or cancelled run.
func (d *Driver) Run(ctx context.Context, req Request) (Result, error) {
	r := &run{d: d, req: req, wm: newWatermark(req.Index)}
	r.enter(StateInit)

	if err := r.req.Validate(); err != nil {
		return r.abort(err)
	}
	req = r.req

	params := cetus.FetchParams{
		Query: req.Query,
		Index: req.Index,
		Media: req.Media,
		Upper: req.Upper,
	}

	if req.UsesMarker() {
		prev, err := d.markers.Load(markers.Key{Index: req.Index, Query: req.Query})
		switch {
		case errors.Is(err, apperr.ErrCorruptMarker):
			msg := "stored marker is corrupt, running a full fetch"
			if req.ToFile() && req.OutputPrefix == "" {
				msg += "; " + req.OutputPath + " will be replaced, not appended to"
			}
			r.warn(msg, slog.String("error", err.Error()))
		case err != nil:
			return r.abort(fmt.Errorf("reconcile: load marker: %w", err))
		case prev != nil:
			r.res.PreviousMarker = prev
		}
		r.enter(StateMarkerLoaded)
	}

	prev := r.res.PreviousMarker
	if prev != nil && !req.ForceFullRewrite {
		prevTime, err := prev.Time()
		if err != nil {
			return r.abort(fmt.Errorf("reconcile: marker timestamp: %w", err))
		}
		// Records at or before the marker are already in the file, whatever
		// bound the fetch ends up using.
		r.wm.setFloor(prevTime)
	}
	switch {
	case req.Lower != "":
		params.Lower = req.Lower
	case prev != nil && !req.ForceFullRewrite:
		params.Lower = prev.LastTimestamp
	case req.SinceDays > 0:
		since := d.now().UTC().AddDate(0, 0, -req.SinceDays).Truncate(time.Second)
		params.Lower = since.Format("2006-01-02T15:04:05")
	}
	r.appendMode = prev != nil && !req.ForceFullRewrite && req.OutputPrefix == ""

	switch {
	case req.OutputPath != "":
		r.path = req.OutputPath
	case req.OutputPrefix != "":
		r.path = fmt.Sprintf("%s_%s.%s", req.OutputPrefix, d.now().Format("20060102_150405"), req.Format.Extension())
	}

	d.logger.Debug("reconcile: fetching",
		slog.String("index", string(req.Index)),
		slog.String("lower", params.Lower),
		slog.Bool("append", r.appendMode),
		slog.Bool("stream", req.Stream))
	r.enter(StateFetching)

	var err error
	if req.Stream {
		err = r.stream(ctx, params)
	} else {
		err = r.buffered(ctx, params)
	}
	if err != nil {
		return r.abort(err)
	}
	r.enter(StateReconciled)

	if r.wm.stale > 0 {
		d.logger.Debug("reconcile: dropped records at or before marker", slog.Int("count", r.wm.stale))
	}
	if r.wm.untimed > 0 {
		msg := fmt.Sprintf("%d record(s) had no %s", r.wm.untimed, req.Index.TimestampField())
		if r.wm.hasFloor {
			msg += " and were skipped"
		}
		r.warn(msg)
	}
	r.res.Stale = r.wm.stale

	if req.UsesMarker() && r.res.Written > 0 {
		if err := r.saveMarker(); err != nil {
			return r.abort(err)
		}
	}
	r.enter(StateDone)
	return r.res, nil
}

// buffered drains the whole fetch before writing anything.
func (r *run) buffered(ctx context.Context, params cetus.FetchParams) error {
	var batch []models.Record
	for rec, err := range r.d.fetcher.Fetch(ctx, params) {
		if err != nil {
			return err
		}
		r.res.Fetched++
		if r.wm.admit(rec) {
			batch = append(batch, rec)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if r.path == "" {
		bw := bufio.NewWriter(r.d.stdout)
		if err := output.Encode(r.req.Format, bw, batch); err != nil {
			return err
		}
		r.res.Written = len(batch)
		return bw.Flush()
	}
	return r.flush(batch)
}

// flush reconciles one batch into the target file.
func (r *run) flush(batch []models.Record) error {
	if len(batch) == 0 {
		return nil
	}
	res, err := r.d.writer.Write(r.path, r.req.Format, batch, r.appendMode || r.flushed)
	if err != nil {
		return err
	}
	if !r.flushed {
		r.res.Appended = res.Appended
	}
	r.flushed = true
	r.res.Path = r.path
	r.res.Written += res.Written
	if res.Schema != nil {
		if r.res.Schema == nil {
			r.res.Schema = res.Schema
		} else {
			r.res.Schema.Records += res.Schema.Records
			r.res.Schema.Dropped = mergeNames(r.res.Schema.Dropped, res.Schema.Dropped)
		}
	}
	return nil
}

func (r *run) saveMarker() error {
	prev := r.res.PreviousMarker
	if !r.wm.seen() {
		return nil
	}
	if prev != nil {
		if prevTime, err := prev.Time(); err == nil && !r.wm.max.After(prevTime) {
			r.d.logger.Debug("reconcile: watermark did not advance", slog.String("marker", prev.LastTimestamp))
			return nil
		}
	}
	m := &models.Marker{
		Query:         r.req.Query,
		Index:         r.req.Index,
		LastTimestamp: r.wm.maxRaw,
		LastUUID:      r.wm.maxUUID,
		UpdatedAt:     r.d.now().UTC(),
	}
	if err := r.d.markers.Save(m); err != nil {
		return fmt.Errorf("reconcile: save marker: %w", err)
	}
	r.res.Marker = m
	r.res.MarkerAdvanced = true
	r.enter(StateMarkerSaved)
	return nil
}

func mergeNames(a, b []string) []string {
	seen := make(map[string]struct{}, len(a))
	for _, s := range a {
		seen[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := seen[s]; !ok {
			a = append(a, s)
			seen[s] = struct{}{}
		}
	}
	return a
}
