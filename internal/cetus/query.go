package cetus

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/starford/cetus/internal/models"
)

// FetchParams describes one query.
type FetchParams struct {
	Query string
	Index models.Index
	Media models.Media
	// Lower is the inclusive lower bound on the index timestamp. Empty means
	// no time filter.
	Lower string
	// Upper is an optional inclusive upper bound.
	Upper string
}

type queryRequest struct {
	Query string       `json:"query"`
	Index models.Index `json:"index"`
	Media models.Media `json:"media"`
	PitID string       `json:"pit_id,omitempty"`
}

type queryResponse struct {
	Data  []models.Record `json:"data"`
	PitID string          `json:"pit_id"`
}

// BuildQuery appends the timestamp range filter to search.
func BuildQuery(search string, index models.Index, lower, upper string) string {
	if lower == "" && upper == "" {
		return "(" + search + ")"
	}
	if lower == "" {
		lower = "*"
	}
	if upper == "" {
		upper = "*"
	}
	return fmt.Sprintf("(%s) AND %s:[%s TO %s]", search, index.TimestampField(), lower, upper)
}

// Fetch returns the records matching p in arrival order. Pages are requested
// lazily as the sequence is consumed; iteration stops after the first error,
// which is yielded with a zero Record.
//
// Arrival order is not trusted to be timestamp order. A full page only tells
// that the server cut its sorted result somewhere, so the next request
// narrows the range on the side that was cut: above the page when it came
// oldest first, below it when it came newest first. The bound is inclusive,
// and records already delivered at the bound timestamp are skipped by uuid.
func (c *Client) Fetch(ctx context.Context, p FetchParams) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		lower, upper := p.Lower, p.Upper
		pitID := ""
		pages := 0
		var edge boundary

		for {
			req := queryRequest{
				Query: BuildQuery(p.Query, p.Index, lower, upper),
				Index: p.Index,
				Media: p.Media,
				PitID: pitID,
			}
			var page queryResponse
			if err := c.do(ctx, http.MethodPost, "/api/query/", nil, req, &page); err != nil {
				yield(models.Record{}, err)
				return
			}
			pages++

			data := page.Data
			if len(data) == 0 {
				return
			}

			delivered := 0
			for _, r := range data {
				if edge.has(r, p.Index) {
					continue
				}
				if !yield(r, nil) {
					return
				}
				delivered++
			}
			c.logger.Debug("cetus: page",
				slog.Int("page", pages),
				slog.Int("records", len(data)),
				slog.Int("delivered", delivered))

			if len(data) < c.pageSize {
				return
			}
			if delivered == 0 {
				c.logger.Warn("cetus: pagination stalled, more records share one timestamp than fit in a page",
					slog.String("timestamp", edge.ts))
				return
			}

			span, ok := spanOf(data, p.Index)
			if !ok {
				c.logger.Warn("cetus: full page without timestamps, stopping pagination")
				return
			}
			pitID = page.PitID
			if span.descending {
				upper = span.low
				edge.move(span.low, data, p.Index)
			} else {
				lower = span.high
				edge.move(span.high, data, p.Index)
			}
		}
	}
}

// pageSpan is the timestamp range of one page and the order it came in.
type pageSpan struct {
	low, high  string
	descending bool
}

func spanOf(data []models.Record, index models.Index) (pageSpan, bool) {
	var (
		span        pageSpan
		lo, hi      time.Time
		first, last time.Time
		found       bool
	)
	for _, r := range data {
		ts, err := r.Timestamp(index)
		if err != nil {
			continue
		}
		if !found {
			first, lo, hi = ts, ts, ts
			span.low, span.high = r.RawTimestamp(index), r.RawTimestamp(index)
			found = true
		}
		last = ts
		if ts.Before(lo) {
			lo, span.low = ts, r.RawTimestamp(index)
		}
		if ts.After(hi) {
			hi, span.high = ts, r.RawTimestamp(index)
		}
	}
	span.descending = last.Before(first)
	return span, found
}

// boundary holds the uuids already delivered at the timestamp the next
// request is anchored on. Those are the only records a sorted server can
// return twice.
type boundary struct {
	ts    string
	at    time.Time
	uuids map[string]struct{}
}

func (b *boundary) has(r models.Record, index models.Index) bool {
	if b.uuids == nil || r.UUID() == "" {
		return false
	}
	if ts, err := r.Timestamp(index); err != nil || !ts.Equal(b.at) {
		return false
	}
	_, ok := b.uuids[r.UUID()]
	return ok
}

func (b *boundary) move(raw string, data []models.Record, index models.Index) {
	at, err := models.ParseTimestamp(raw)
	if err != nil {
		return
	}
	if b.uuids == nil || !at.Equal(b.at) {
		b.ts, b.at = raw, at
		b.uuids = make(map[string]struct{})
	}
	for _, r := range data {
		if ts, err := r.Timestamp(index); err == nil && ts.Equal(at) && r.UUID() != "" {
			b.uuids[r.UUID()] = struct{}{}
		}
	}
}

// Query drains Fetch into a slice.
func (c *Client) Query(ctx context.Context, p FetchParams) ([]models.Record, error) {
	var out []models.Record
	for r, err := range c.Fetch(ctx, p) {
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
