// Package fileio provides the file primitives the IPC channels are built on.
//
// FS abstracts the operations both channels need so that the permission
// changes can be routed through a root shell while data reads and writes stay
// in the unprivileged process.
package fileio

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FS is the file-primitive collaborator used by the IPC channels.
type FS interface {
	// Exists reports whether name exists.
	Exists(name string) bool

	// Create creates name empty, truncating any existing file.
	Create(name string) error

	// Remove deletes a single file. A missing file is not an error.
	Remove(name string) error

	// RemoveAll deletes name and everything below it.
	RemoveAll(name string) error

	// ReadAll returns the full contents of name.
	ReadAll(name string) ([]byte, error)

	// Write replaces the contents of name with data, or appends when append is set.
	Write(name string, data []byte, append bool) error

	// Overwrite replaces the contents of an existing file. It never creates
	// name; a missing file yields an fs.ErrNotExist error.
	Overwrite(name string, data []byte) error

	// List returns the base names of the entries in dir.
	List(dir string) ([]string, error)

	// ModTime returns the last modification time of name.
	ModTime(name string) (time.Time, error)

	// Chmod changes the permission bits of name.
	Chmod(name string, mode os.FileMode) error

	// MkdirAll creates dir and any missing parents.
	MkdirAll(dir string, mode os.FileMode) error
}

// Local implements FS on the os package with the caller's privileges.
type Local struct{}

var _ FS = Local{}

func (Local) Exists(name string) bool {
	_, err := os.Lstat(name)
	return err == nil
}

func (Local) Create(name string) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	return f.Close()
}

func (Local) Remove(name string) error {
	if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (Local) RemoveAll(name string) error {
	return os.RemoveAll(name)
}

func (Local) ReadAll(name string) ([]byte, error) {
	return os.ReadFile(name)
}

func (Local) Write(name string, data []byte, append bool) error {
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(name, flags, 0666)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (Local) Overwrite(name string, data []byte) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (Local) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (Local) ModTime(name string) (time.Time, error) {
	info, err := os.Stat(name)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

func (Local) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(name, mode)
}

func (Local) MkdirAll(dir string, mode os.FileMode) error {
	return os.MkdirAll(filepath.Clean(dir), mode)
}
