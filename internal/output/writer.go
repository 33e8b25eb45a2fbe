package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/pkg/atomicfile"
)

// Result describes what a Write call did to the target file.
type Result struct {
	Path     string
	Written  int
	Appended bool
	// Schema is set for CSV when records carried fields outside the header.
	Schema *SchemaMismatch
}

// Writer reconciles batches of new records into an output file. Every write
// goes to a temp file in the target directory and is renamed into place, so
// the target always holds either the previous or the new complete document.
type Writer struct {
	logger *slog.Logger
}

// NewWriter returns a Writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write stores records at path in format. With appendMode set the records
// are merged after the existing content; otherwise the file is replaced.
// An empty batch leaves the file untouched.
func (w *Writer) Write(path string, format models.Format, records []models.Record, appendMode bool) (Result, error) {
	res := Result{Path: path}
	if format == models.FormatTable {
		return res, apperr.Configuration("format %q cannot be written to a file", format)
	}
	if len(records) == 0 {
		return res, nil
	}

	var existing []byte
	if appendMode {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			w.logger.Debug("output: append target missing, starting fresh", slog.String("path", path))
		case err != nil:
			return res, &apperr.WriteError{Path: path, Op: "read existing", Err: err}
		default:
			existing = data
			res.Appended = true
		}
	}

	mismatch, err := replace(path, func(out io.Writer) (*SchemaMismatch, error) {
		return merge(out, format, existing, records)
	})
	if err != nil {
		return res, err
	}
	res.Written = len(records)
	res.Schema = mismatch
	if mismatch != nil {
		w.logger.Warn("output: csv fields outside header were dropped",
			slog.String("path", path),
			slog.Any("dropped", mismatch.Dropped),
			slog.Int("records", mismatch.Records))
	}
	return res, nil
}

// merge writes existing (possibly nil) followed by records to out.
func merge(out io.Writer, format models.Format, existing []byte, records []models.Record) (*SchemaMismatch, error) {
	switch format {
	case models.FormatJSONL:
		if err := copyLines(out, existing); err != nil {
			return nil, err
		}
		return nil, encodeAll(&jsonlEncoder{w: out}, records)

	case models.FormatCSV:
		opts := EncoderOptions{}
		if len(bytes.TrimSpace(existing)) > 0 {
			header, err := readCSVHeader(bytes.NewReader(existing))
			if err != nil {
				return nil, fmt.Errorf("parse existing csv header: %w", err)
			}
			opts = EncoderOptions{Columns: header, OmitHeader: true}
			if err := copyLines(out, existing); err != nil {
				return nil, err
			}
		}
		enc := newCSVEncoder(out, opts)
		if err := encodeAll(enc, records); err != nil {
			return nil, err
		}
		return enc.Mismatch(), nil

	case models.FormatJSON:
		var prior []json.RawMessage
		if len(bytes.TrimSpace(existing)) > 0 {
			if err := json.Unmarshal(existing, &prior); err != nil {
				return nil, fmt.Errorf("parse existing json array: %w", err)
			}
		}
		enc := &jsonArrayEncoder{w: out}
		if err := enc.Begin(); err != nil {
			return nil, err
		}
		for _, raw := range prior {
			if err := enc.encodeRaw(raw); err != nil {
				return nil, err
			}
		}
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return nil, err
			}
		}
		return nil, enc.End()
	}
	return nil, apperr.Configuration("unknown output format %q", format)
}

func encodeAll(enc Encoder, records []models.Record) error {
	if err := enc.Begin(); err != nil {
		return err
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return enc.End()
}

// copyLines writes data, terminating a final unterminated line.
func copyLines(out io.Writer, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if _, err := out.Write(data); err != nil {
		return err
	}
	if data[len(data)-1] != '\n' {
		_, err := out.Write([]byte{'\n'})
		return err
	}
	return nil
}

// replace writes path atomically through fill, wrapping failures as
// WriteError with the failed step.
func replace(path string, fill func(io.Writer) (*SchemaMismatch, error)) (*SchemaMismatch, error) {
	var mismatch *SchemaMismatch
	err := atomicfile.Write(path, func(out io.Writer) error {
		var err error
		mismatch, err = fill(out)
		return err
	}, atomicfile.WithPattern(".cetus-tmp-*"))
	if err != nil {
		return nil, &apperr.WriteError{Path: path, Op: atomicfile.Op(err), Err: errors.Unwrap(err)}
	}
	return mismatch, nil
}
