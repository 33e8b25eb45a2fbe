package models

import "time"

// Index names a logical data source on the search API.
type Index string

const (
	IndexDNS        Index = "dns"
	IndexCertstream Index = "certstream"
	IndexAlerting   Index = "alerting"
)

// Indexes lists every valid index.
var Indexes = []Index{IndexDNS, IndexCertstream, IndexAlerting}

// TimestampField is the record field the index orders by.
func (i Index) TimestampField() string {
	return string(i) + "_timestamp"
}

// Media is the storage tier a query runs against.
type Media string

const (
	MediaNVMe Media = "nvme"
	MediaAll  Media = "all"
)

// Format is an output serialization.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
)

// Formats lists every output format.
var Formats = []Format{FormatJSON, FormatJSONL, FormatCSV, FormatTable}

// Extension returns the file extension used for timestamped outputs.
func (f Format) Extension() string {
	if f == FormatTable {
		return "txt"
	}
	return string(f)
}

// Marker records that everything at or before LastTimestamp has been seen
// for one (index, query) pair.
type Marker struct {
	Query         string    `json:"query"`
	Index         Index     `json:"index"`
	LastTimestamp string    `json:"last_timestamp"`
	LastUUID      string    `json:"last_uuid"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Time parses LastTimestamp.
func (m *Marker) Time() (time.Time, error) {
	return ParseTimestamp(m.LastTimestamp)
}

// Alert is an alert definition on the server.
type Alert struct {
	ID          int    `json:"id"`
	AlertType   string `json:"alert_type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Query       string `json:"query_preview"`
	Owned       bool   `json:"owned"`
	SharedBy    string `json:"shared_by,omitempty"`
}
