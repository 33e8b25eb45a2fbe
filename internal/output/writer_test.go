package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/cetus/internal/apperr"
	"github.com/starford/cetus/internal/models"
)

func batch(start, n int) []models.Record {
	out := make([]models.Record, 0, n)
	for i := start; i < start+n; i++ {
		out = append(out, models.RecordOf(
			"uuid", fmt.Sprintf("u%d", i),
			"host", fmt.Sprintf("h%d.example.com", i),
			"dns_timestamp", fmt.Sprintf("2025-01-01T00:00:%02d", i),
		))
	}
	return out
}

// writeBatches mimics three incremental runs: the first replaces, the rest append.
func writeBatches(t *testing.T, w *Writer, path string, format models.Format, sizes ...int) {
	t.Helper()
	next := 0
	for i, n := range sizes {
		if _, err := w.Write(path, format, batch(next, n), i > 0); err != nil {
			t.Fatalf("Write batch %d: %v", i, err)
		}
		next += n
	}
}

func assertNoTemp(t *testing.T, dir string) {
	t.Helper()
	matches, _ := filepath.Glob(filepath.Join(dir, ".cetus-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestJSONArrayMergesBatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	writeBatches(t, NewWriter(nil), path, models.FormatJSON, 2, 0, 3)

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var arr []map[string]any
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("not a valid array: %v\n%s", err, data)
	}
	if len(arr) != 5 {
		t.Fatalf("len = %d, want 5", len(arr))
	}
	for i, rec := range arr {
		if rec["uuid"] != fmt.Sprintf("u%d", i) {
			t.Errorf("arr[%d].uuid = %v", i, rec["uuid"])
		}
	}
	assertNoTemp(t, dir)
}

func TestJSONLAppendsBatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.jsonl")
	writeBatches(t, NewWriter(nil), path, models.FormatJSONL, 2, 0, 3)

	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 5 {
		t.Fatalf("lines = %d, want 5:\n%s", len(lines), data)
	}
	for i, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("line %d invalid: %v", i, err)
		}
	}
}

func TestCSVAppendsWithSingleHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	writeBatches(t, NewWriter(nil), path, models.FormatCSV, 2, 0, 3)

	f, _ := os.Open(path)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("invalid csv: %v", err)
	}
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want header + 5", len(rows))
	}
	if strings.Join(rows[0], ",") != "uuid,host,dns_timestamp" {
		t.Errorf("header = %v", rows[0])
	}
	for _, row := range rows[1:] {
		if row[0] == "uuid" {
			t.Error("header repeated")
		}
	}
}

func TestEmptyBatchLeavesFileUntouched(t *testing.T) {
	for _, format := range []models.Format{models.FormatJSON, models.FormatJSONL, models.FormatCSV} {
		t.Run(string(format), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out."+string(format))
			w := NewWriter(nil)
			if _, err := w.Write(path, format, batch(0, 2), false); err != nil {
				t.Fatal(err)
			}
			before, _ := os.ReadFile(path)
			infoBefore, _ := os.Stat(path)

			res, err := w.Write(path, format, nil, true)
			if err != nil {
				t.Fatalf("Write empty: %v", err)
			}
			if res.Written != 0 {
				t.Errorf("Written = %d", res.Written)
			}
			after, _ := os.ReadFile(path)
			infoAfter, _ := os.Stat(path)
			if !bytes.Equal(before, after) {
				t.Error("file content changed")
			}
			if !infoBefore.ModTime().Equal(infoAfter.ModTime()) {
				t.Error("file was rewritten")
			}

			// Not-append with no records must not truncate either.
			if _, err := w.Write(path, format, nil, false); err != nil {
				t.Fatal(err)
			}
			after, _ = os.ReadFile(path)
			if !bytes.Equal(before, after) {
				t.Error("file truncated by empty overwrite")
			}
		})
	}
}

func TestEmptyBatchDoesNotCreateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if _, err := NewWriter(nil).Write(path, models.FormatJSON, nil, false); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("file should not exist: %v", err)
	}
}

func TestOverwriteReplaces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w := NewWriter(nil)
	_, _ = w.Write(path, models.FormatJSONL, batch(0, 3), false)
	res, err := w.Write(path, models.FormatJSONL, batch(10, 1), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Appended {
		t.Error("Appended should be false")
	}
	data, _ := os.ReadFile(path)
	if strings.Count(string(data), "\n") != 1 || !strings.Contains(string(data), `"u10"`) {
		t.Errorf("content = %s", data)
	}
}

func TestAppendToMissingFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "out.csv")
	res, err := NewWriter(nil).Write(path, models.FormatCSV, batch(0, 1), true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Appended {
		t.Error("nothing to append to")
	}
	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "uuid,host,dns_timestamp\n") {
		t.Errorf("missing header: %q", data)
	}
}

func TestJSONLAppendTerminatesLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	if err := os.WriteFile(path, []byte(`{"uuid":"x"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWriter(nil).Write(path, models.FormatJSONL, batch(0, 1), true); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("lines = %q", lines)
	}
}

func TestCSVSchemaDriftDropsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewWriter(nil)
	_, _ = w.Write(path, models.FormatCSV, batch(0, 1), false)

	drift := []models.Record{
		models.RecordOf("uuid", "u9", "host", "x", "dns_timestamp", "2025-01-01T00:01:00", "AAAA", "::1", "ttl", float64(60)),
	}
	res, err := w.Write(path, models.FormatCSV, drift, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Schema == nil {
		t.Fatal("expected schema mismatch report")
	}
	if strings.Join(res.Schema.Dropped, ",") != "AAAA,ttl" || res.Schema.Records != 1 {
		t.Errorf("mismatch = %+v", res.Schema)
	}

	f, _ := os.Open(path)
	defer f.Close()
	rows, _ := csv.NewReader(f).ReadAll()
	if len(rows) != 3 || len(rows[2]) != 3 || rows[2][0] != "u9" {
		t.Errorf("rows = %v", rows)
	}
}

func TestCSVMissingFieldsLeftEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	w := NewWriter(nil)
	_, _ = w.Write(path, models.FormatCSV, batch(0, 1), false)
	res, err := w.Write(path, models.FormatCSV, []models.Record{models.RecordOf("uuid", "u5")}, true)
	if err != nil {
		t.Fatal(err)
	}
	if res.Schema != nil {
		t.Errorf("unexpected mismatch %+v", res.Schema)
	}
	data, _ := os.ReadFile(path)
	if !strings.HasSuffix(string(data), "u5,,\n") {
		t.Errorf("content = %q", data)
	}
}

func TestTableRejectedForFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.txt")
	_, err := NewWriter(nil).Write(path, models.FormatTable, batch(0, 1), false)
	if !errors.Is(err, apperr.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

func TestCorruptJSONArrayIsNotOverwritten(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")
	original := []byte(`[{"uuid":"a"},`)
	if err := os.WriteFile(path, original, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := NewWriter(nil).Write(path, models.FormatJSON, batch(0, 1), true)
	if !errors.Is(err, apperr.ErrWrite) {
		t.Fatalf("err = %v, want ErrWrite", err)
	}
	after, _ := os.ReadFile(path)
	if !bytes.Equal(after, original) {
		t.Error("corrupt file was modified")
	}
	assertNoTemp(t, dir)
}

func TestWritePreservesFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewWriter(nil).Write(path, models.FormatJSONL, batch(0, 1), true); err != nil {
		t.Fatal(err)
	}
	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v", info.Mode().Perm())
	}
}
