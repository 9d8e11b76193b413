package playset

import (
	"errors"
	"os"
	"path/filepath"
)

// Files with this suffix are half-written sets and are never loaded.
const workInProgressSuffix = ".wip"

// WritePlayset encodes p and writes it to dir/p.Name. The content goes to a
// uniquely named work-in-progress file first and is renamed into place once
// complete. Callers writing the same set concurrently must serialize.
func WritePlayset(p *Playset, dir string) (err error) {
	if err := validateName(p.Name); err != nil {
		return err
	}
	encoded, err := Encode(p.Root)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, p.Name)
	file, err := os.CreateTemp(dir, p.Name+".*"+workInProgressSuffix)
	if err != nil {
		return &IOError{Op: "create", Path: path + workInProgressSuffix, Err: err}
	}
	tempPath := file.Name()
	defer func() {
		if err != nil {
			os.Remove(tempPath)
		}
	}()

	if err = file.Chmod(0644); err != nil {
		file.Close()
		return &IOError{Op: "chmod", Path: tempPath, Err: err}
	}
	if _, err = file.WriteString(encoded); err != nil {
		file.Close()
		return &IOError{Op: "write", Path: tempPath, Err: err}
	}
	if err = file.Sync(); err != nil {
		file.Close()
		return &IOError{Op: "sync", Path: tempPath, Err: err}
	}
	if err = file.Close(); err != nil {
		return &IOError{Op: "close", Path: tempPath, Err: err}
	}
	if err = os.Rename(tempPath, path); err != nil {
		return &IOError{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// ReadPlayset parses the set stored at path, named after the file.
func ReadPlayset(path string, items ItemResolver) (*Playset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	name := filepath.Base(path)
	root, err := Parse(name, string(data), items)
	if err != nil {
		return nil, err
	}
	return &Playset{Name: name, Root: root}, nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
