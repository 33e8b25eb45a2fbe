// Package output serializes records and reconciles them into accumulated
// output files.
package output

import (
	"fmt"
	"io"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
)

// Encoder streams records in one format to a writer. Begin must be called
// once before Encode and End once after the last record.
type Encoder interface {
	Begin() error
	Encode(r models.Record) error
	End() error
}

// EncoderOptions tune how an encoder starts.
type EncoderOptions struct {
	// Columns fixes the CSV column set. When empty the first record's
	// fields are used.
	Columns []string
	// OmitHeader suppresses the CSV header row, for appends.
	OmitHeader bool
}

// NewEncoder returns the encoder for format.
func NewEncoder(format models.Format, w io.Writer, opts EncoderOptions) (Encoder, error) {
	switch format {
	case models.FormatJSON:
		return &jsonArrayEncoder{w: w}, nil
	case models.FormatJSONL:
		return &jsonlEncoder{w: w}, nil
	case models.FormatCSV:
		return newCSVEncoder(w, opts), nil
	case models.FormatTable:
		return &tableEncoder{w: w}, nil
	default:
		return nil, apperr.Configuration("unknown output format %q", format)
	}
}

// Encode writes records as one complete document in format.
func Encode(format models.Format, w io.Writer, records []models.Record) error {
	enc, err := NewEncoder(format, w, EncoderOptions{})
	if err != nil {
		return err
	}
	if err := enc.Begin(); err != nil {
		return err
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("output: encode %s: %w", format, err)
		}
	}
	return enc.End()
}
