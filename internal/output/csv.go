package output

import (
	"encoding/csv"
	"io"
	"sort"

	"github.com/starford/cetus/internal/models"
)

// SchemaMismatch reports fields that records carried but the fixed CSV
// header has no column for. Those values are not written.
type SchemaMismatch struct {
	Columns []string
	Dropped []string
	Records int
}

type csvEncoder struct {
	w          *csv.Writer
	columns    []string
	omitHeader bool
	started    bool

	known   map[string]struct{}
	dropped map[string]struct{}
	hits    int
}

func newCSVEncoder(w io.Writer, opts EncoderOptions) *csvEncoder {
	return &csvEncoder{
		w:          csv.NewWriter(w),
		columns:    opts.Columns,
		omitHeader: opts.OmitHeader,
		dropped:    make(map[string]struct{}),
	}
}

func (e *csvEncoder) Begin() error {
	if len(e.columns) > 0 {
		return e.start()
	}
	return nil
}

// start fixes the column set and emits the header row.
func (e *csvEncoder) start() error {
	e.started = true
	e.known = make(map[string]struct{}, len(e.columns))
	for _, c := range e.columns {
		e.known[c] = struct{}{}
	}
	if e.omitHeader {
		return nil
	}
	return e.w.Write(e.columns)
}

func (e *csvEncoder) Encode(r models.Record) error {
	if !e.started {
		e.columns = r.Keys()
		if err := e.start(); err != nil {
			return err
		}
	}

	extra := false
	for _, k := range r.Keys() {
		if _, ok := e.known[k]; !ok {
			e.dropped[k] = struct{}{}
			extra = true
		}
	}
	if extra {
		e.hits++
	}

	row := make([]string, len(e.columns))
	for i, c := range e.columns {
		row[i] = r.String(c)
	}
	return e.w.Write(row)
}

func (e *csvEncoder) End() error {
	e.w.Flush()
	return e.w.Error()
}

// Mismatch returns the dropped-field report, or nil when every field fit.
func (e *csvEncoder) Mismatch() *SchemaMismatch {
	if len(e.dropped) == 0 {
		return nil
	}
	dropped := make([]string, 0, len(e.dropped))
	for k := range e.dropped {
		dropped = append(dropped, k)
	}
	sort.Strings(dropped)
	return &SchemaMismatch{Columns: e.columns, Dropped: dropped, Records: e.hits}
}

// readCSVHeader returns the header row of an existing CSV document.
func readCSVHeader(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	return header, err
}
