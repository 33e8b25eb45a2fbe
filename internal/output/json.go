package output

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/starford/cetus/internal/models"
)

// jsonlEncoder writes one compact object per line.
type jsonlEncoder struct {
	w io.Writer
}

func (e *jsonlEncoder) Begin() error { return nil }

func (e *jsonlEncoder) Encode(r models.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	_, err = e.w.Write(b)
	return err
}

func (e *jsonlEncoder) End() error { return nil }

// jsonArrayEncoder writes a single array, one compact element per line:
//
//	[
//	  {...},
//	  {...}
//	]
type jsonArrayEncoder struct {
	w io.Writer
	n int
}

func (e *jsonArrayEncoder) Begin() error {
	_, err := io.WriteString(e.w, "[")
	return err
}

func (e *jsonArrayEncoder) Encode(r models.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return e.encodeRaw(b)
}

// encodeRaw appends an already-encoded element, compacting it first.
func (e *jsonArrayEncoder) encodeRaw(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return err
	}
	sep := ",\n  "
	if e.n == 0 {
		sep = "\n  "
	}
	if _, err := io.WriteString(e.w, sep); err != nil {
		return err
	}
	if _, err := e.w.Write(buf.Bytes()); err != nil {
		return err
	}
	e.n++
	return nil
}

func (e *jsonArrayEncoder) End() error {
	tail := "\n]\n"
	if e.n == 0 {
		tail = "]\n"
	}
	_, err := io.WriteString(e.w, tail)
	return err
}
