package fileio

import (
	"errors"
	"fmt"
	"io/fs"
)

// ErrNotFound is returned by ReadFile and WriteFile when the caller opted in
// to errors and the target does not exist.
var ErrNotFound = errors.New("file not found")

// ReadFile returns the contents of path as a string. Without errOnFailure any
// failure yields "" and a nil error.
func ReadFile(fsys FS, path string, errOnFailure bool) (string, error) {
	data, err := fsys.ReadAll(path)
	if err != nil {
		if !errOnFailure {
			return "", nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes data to path, replacing or appending. Without errOnFailure
// failures are swallowed.
func WriteFile(fsys FS, path, data string, append, errOnFailure bool) error {
	if err := fsys.Write(path, []byte(data), append); err != nil {
		if !errOnFailure {
			return nil
		}
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
