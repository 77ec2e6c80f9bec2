// Package fsio provides the file-writing discipline shared by all pipeline
// stages: output goes to a sibling temporary file and is renamed over the
// destination only after a complete, successful write. A crash mid-stage
// never leaves a half-written file under a canonical name.
package fsio

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// maxLineSize bounds a single JSONL record; DMI observation lines are well
// under 1 KiB, the margin covers pathological comment fields.
const maxLineSize = 4 * 1024 * 1024

// AtomicFile is an output file that only appears at its destination path on
// Commit. Abandoning it (Discard, or Commit after an error) removes the
// temporary file and leaves any previous destination content untouched.
type AtomicFile struct {
	dest string
	tmp  *os.File
	w    *bufio.Writer
}

// NewAtomicFile creates the temporary sibling of dest and returns a buffered
// handle to it.
func NewAtomicFile(dest string) (*AtomicFile, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", dest, err)
	}
	return &AtomicFile{dest: dest, tmp: tmp, w: bufio.NewWriter(tmp)}, nil
}

// Writer returns the buffered writer for the pending file.
func (a *AtomicFile) Writer() *bufio.Writer {
	return a.w
}

// Commit flushes, syncs, and renames the temporary file over the destination.
func (a *AtomicFile) Commit() error {
	if err := a.w.Flush(); err != nil {
		a.Discard()
		return fmt.Errorf("flush %s: %w", a.dest, err)
	}
	if err := a.tmp.Sync(); err != nil {
		a.Discard()
		return fmt.Errorf("sync %s: %w", a.dest, err)
	}
	if err := a.tmp.Close(); err != nil {
		os.Remove(a.tmp.Name())
		return fmt.Errorf("close %s: %w", a.dest, err)
	}
	if err := os.Rename(a.tmp.Name(), a.dest); err != nil {
		os.Remove(a.tmp.Name())
		return fmt.Errorf("replace %s: %w", a.dest, err)
	}
	return nil
}

// Discard abandons the pending write and removes the temporary file.
func (a *AtomicFile) Discard() {
	a.tmp.Close()
	os.Remove(a.tmp.Name())
}

// WriteAtomic runs write against a buffered writer and atomically installs
// the result at dest. If write returns an error, dest is left untouched.
func WriteAtomic(dest string, write func(w *bufio.Writer) error) error {
	f, err := NewAtomicFile(dest)
	if err != nil {
		return err
	}
	if err := write(f.Writer()); err != nil {
		f.Discard()
		return err
	}
	return f.Commit()
}

// NewLineScanner returns a line scanner sized for observation records.
func NewLineScanner(f *os.File) *bufio.Scanner {
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)
	return sc
}
