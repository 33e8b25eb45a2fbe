package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/starford/cetus/internal/models"
)

// MaxCellWidth caps the width of a table cell.
const MaxCellWidth = 40

// tableEncoder buffers every record; column widths need the whole set.
type tableEncoder struct {
	w       io.Writer
	records []models.Record
}

func (e *tableEncoder) Begin() error { return nil }

func (e *tableEncoder) Encode(r models.Record) error {
	e.records = append(e.records, r)
	return nil
}

func (e *tableEncoder) End() error {
	return RenderTable(e.w, e.records)
}

// RenderTable writes records as an aligned text table. Columns are the union
// of record fields in first-seen order.
func RenderTable(w io.Writer, records []models.Record) error {
	if len(records) == 0 {
		_, err := io.WriteString(w, "No results\n")
		return err
	}

	var columns []string
	seen := map[string]struct{}{}
	for _, r := range records {
		for _, k := range r.Keys() {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(columns, "\t"))
	rule := make([]string, len(columns))
	for i, c := range columns {
		rule[i] = strings.Repeat("-", utf8.RuneCountInString(truncate(c)))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))

	cells := make([]string, len(columns))
	for _, r := range records {
		for i, c := range columns {
			cells[i] = truncate(cleanCell(r.String(c)))
		}
		fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	return tw.Flush()
}

func cleanCell(s string) string {
	return strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(s)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxCellWidth {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxCellWidth-3]) + "..."
}
