package store

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	sberrors "github.com/superbench/sbfleet/pkg/errors"
)

type FileStore struct {
	BasicStore
	fs afero.Fs
}

func (b *BasicStore) WithFileSystem(fs afero.Fs) *FileStore {
	return &FileStore{*b, fs}
}

func (f FileStore) GetOrCreateFile(path string) (afero.File, error) {
	fileExists, err := afero.Exists(f.fs, path)
	if err != nil {
		return nil, sberrors.WrapAndTrace(err)
	}
	var file afero.File
	if fileExists {
		file, err = f.fs.OpenFile(path, os.O_RDWR, 0o644)
		if err != nil {
			return nil, sberrors.WrapAndTrace(err)
		}
	} else {
		if err = f.fs.MkdirAll(filepath.Dir(path), 0o775); err != nil {
			return nil, sberrors.WrapAndTrace(err)
		}
		file, err = f.fs.Create(path)
		if err != nil {
			return nil, sberrors.WrapAndTrace(err)
		}
	}
	return file, nil
}

func (f FileStore) FileExists(filepath string) (bool, error) {
	fileExists, err := afero.Exists(f.fs, filepath)
	if err != nil {
		return false, sberrors.WrapAndTrace(err)
	}
	return fileExists, nil
}

func (f FileStore) ReadString(path string) (string, error) {
	file, err := f.fs.Open(path)
	if err != nil {
		return "", sberrors.WrapAndTrace(err)
	}
	defer file.Close() //nolint:errcheck,gosec // defer

	buf := new(strings.Builder)
	_, err = io.Copy(buf, file)
	if err != nil {
		return "", sberrors.WrapAndTrace(err)
	}
	return buf.String(), nil
}

func (f FileStore) WriteString(path, data string) error {
	file, err := f.GetOrCreateFile(path)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	defer file.Close() //nolint:errcheck,gosec // defer
	err = file.Truncate(0)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	_, err = file.WriteString(data)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	return nil
}

// WriteStringWithMode writes the file then chmods it, so restrictive modes
// like 0400 do not block the write itself.
func (f FileStore) WriteStringWithMode(path, data string, mode os.FileMode) error {
	err := f.WriteString(path, data)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	err = f.fs.Chmod(path, mode)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	return nil
}

func (f FileStore) MkdirAll(path string, mode os.FileMode) error {
	err := f.fs.MkdirAll(path, mode)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	return nil
}

// EnsureWritableDir verifies the directory can actually be written to by
// creating and removing a probe file. Used for fatal config validation
// before any per-host work starts.
func (f FileStore) EnsureWritableDir(path string) error {
	err := f.fs.MkdirAll(path, 0o775)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	probe := filepath.Join(path, ".sbfleet-write-check")
	file, err := f.fs.Create(probe)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	err = file.Close()
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	err = f.fs.Remove(probe)
	if err != nil {
		return sberrors.WrapAndTrace(err)
	}
	return nil
}
