package reconcile

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
	"github.com/starford/cetus/internal/output"
)

// DefaultBatchSize is how many records stream mode buffers before a flush.
const DefaultBatchSize = 1000

// Request describes one run.
type Request struct {
	Query  string
	Index  models.Index
	Media  models.Media
	Format models.Format

	// OutputPath is the accumulated file. Empty with an empty OutputPrefix
	// means stdout, where markers are never touched.
	OutputPath string
	// OutputPrefix writes each run's new records to a fresh
	// <prefix>_<timestamp>.<ext> file instead of accumulating.
	OutputPrefix string

	// SinceDays bounds the first fetch when no marker applies. Zero means
	// no lower bound.
	SinceDays int
	// Lower overrides the computed lower bound.
	Lower string
	// Upper optionally bounds the fetch from above.
	Upper string

	// NoMarker disables marker reads and writes; file output is replaced.
	NoMarker bool
	// ForceFullRewrite ignores the stored marker as a lower bound and
	// replaces the file. The marker is still advanced.
	ForceFullRewrite bool

	// Stream flushes records in batches of BatchSize as they arrive.
	Stream    bool
	BatchSize int
}

// Validate checks the request and fills defaults.
func (r *Request) Validate() error {
	if r.Media == "" {
		r.Media = models.MediaNVMe
	}
	if r.BatchSize <= 0 {
		r.BatchSize = DefaultBatchSize
	}
	err := validation.ValidateStruct(r,
		validation.Field(&r.Query, validation.Required),
		validation.Field(&r.Index, validation.Required,
			validation.In(models.IndexDNS, models.IndexCertstream, models.IndexAlerting)),
		validation.Field(&r.Media, validation.In(models.MediaNVMe, models.MediaAll)),
		validation.Field(&r.Format, validation.Required,
			validation.In(models.FormatJSON, models.FormatJSONL, models.FormatCSV, models.FormatTable)),
		validation.Field(&r.SinceDays, validation.Min(0)),
		validation.Field(&r.OutputPrefix,
			validation.When(r.OutputPath != "", validation.Empty.Error("cannot be combined with an output file"))),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrConfiguration, err)
	}
	if r.ToFile() && r.Format == models.FormatTable {
		return apperr.Configuration("format %q cannot be written to a file, use json, jsonl or csv", r.Format)
	}
	return nil
}

// ToFile reports whether output goes to a file.
func (r *Request) ToFile() bool {
	return r.OutputPath != "" || r.OutputPrefix != ""
}

// UsesMarker reports whether the run reads and writes a marker.
func (r *Request) UsesMarker() bool {
	return r.ToFile() && !r.NoMarker
}

// Result is the outcome of one run.
type Result struct {
	State       State
	Transitions []State

	// Path is the file written, if any.
	Path string
	// Fetched counts records the adapter delivered.
	Fetched int
	// Written counts records persisted (file) or emitted (stdout).
	Written int
	// Stale counts records at or before the previous marker that were dropped.
	Stale    int
	Appended bool

	MarkerAdvanced bool
	Marker         *models.Marker
	PreviousMarker *models.Marker

	Schema   *output.SchemaMismatch
	Warnings []string
}
