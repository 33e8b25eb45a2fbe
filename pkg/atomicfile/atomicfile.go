// Package atomicfile replaces files through a synced temp file and a rename,
// so readers see either the old or the new content and never a partial one.
package atomicfile

import (
	"bufio"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Error reports the step of Write that failed.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Op returns the failed step of err, or "" when err did not come from Write.
func Op(err error) string {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Op
	}
	return ""
}

type options struct {
	perm    fs.FileMode
	keep    bool
	dirPerm fs.FileMode
	pattern string
}

// Option configures Write.
type Option func(*options)

// WithPerm sets the mode of the written file, replacing the mode of any
// existing file.
func WithPerm(perm fs.FileMode) Option {
	return func(o *options) {
		o.perm = perm
		o.keep = false
	}
}

// WithDirPerm sets the mode used when the parent directory is created.
func WithDirPerm(perm fs.FileMode) Option {
	return func(o *options) { o.dirPerm = perm }
}

// WithPattern sets the temp file name pattern, as for os.CreateTemp.
func WithPattern(pattern string) Option {
	return func(o *options) { o.pattern = pattern }
}

// Write creates the parent of path, lets fill write the new content to a
// temp file in the same directory, then fsyncs it and renames it over path.
// An existing file keeps its mode unless WithPerm is given; new files get
// 0644. The temp file is removed on any failure.
func Write(path string, fill func(io.Writer) error, opts ...Option) error {
	o := options{perm: 0o644, keep: true, dirPerm: 0o755, pattern: ".tmp-*"}
	for _, opt := range opts {
		opt(&o)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, o.dirPerm); err != nil {
		return &Error{Op: "mkdir", Err: err}
	}

	mode := o.perm
	if o.keep {
		if info, err := os.Stat(path); err == nil {
			mode = info.Mode().Perm()
		}
	}

	tmp, err := os.CreateTemp(dir, o.pattern)
	if err != nil {
		return &Error{Op: "create temp", Err: err}
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	bw := bufio.NewWriterSize(tmp, 64*1024)
	if err := fill(bw); err != nil {
		return &Error{Op: "encode", Err: err}
	}
	if err := bw.Flush(); err != nil {
		return &Error{Op: "write temp", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &Error{Op: "fsync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "close temp", Err: err}
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return &Error{Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &Error{Op: "rename", Err: err}
	}
	success = true
	return nil
}

// WriteBytes is Write for content already in memory.
func WriteBytes(path string, data []byte, opts ...Option) error {
	return Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}, opts...)
}
