package persistence

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/hupe1980/dualmat/array"
	"github.com/hupe1980/dualmat/internal/compress"
	"github.com/hupe1980/dualmat/internal/fs"
	"github.com/hupe1980/dualmat/internal/mmap"
)

// SaveToFile writes filename atomically: writeFunc fills a temp file in the
// same directory, which is synced and renamed over the target.
func SaveToFile(filename string, writeFunc func(io.Writer) error) error {
	return saveToFile(fs.Default, filename, writeFunc)
}

func saveToFile(fsys fs.FileSystem, filename string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(filename)
	base := filepath.Base(filename)

	tmp, err := fsys.CreateTemp(dir, base+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		if tmpName != "" {
			_ = fsys.Remove(tmpName)
		}
	}()

	_ = tmp.Chmod(0o644)

	buf := bufio.NewWriterSize(tmp, 256*1024)
	if err := writeFunc(buf); err != nil {
		return err
	}
	if err := buf.Flush(); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := fsys.Rename(tmpName, filename); err != nil {
		return err
	}
	tmpName = ""

	// Best-effort: fsync the directory so the rename is durable on POSIX.
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}

// SaveArrayFile writes a to filename atomically.
func SaveArrayFile[T array.Element](filename string, a *array.Array[T], t compress.Type) error {
	return SaveToFile(filename, func(w io.Writer) error {
		return WriteArray(w, a, t)
	})
}

// LoadArrayFile reads an array file through a read-only memory mapping.
func LoadArrayFile[T array.Element](filename string, optFns ...array.Option) (*array.Array[T], error) {
	m, err := mmap.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.Close() }()

	return ReadArray[T](bytes.NewReader(m.Bytes()), optFns...)
}
