package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Alias1177/MatchPredictor/models"
)

const (
	correctionsFile = "corrections.json"
	versionFile     = "model_version.json"
	classifierFile  = "classifier.json"
)

// FileStore keeps state as JSON documents in one directory. Every write goes
// to a temp file that is synced and renamed over the target, so readers see
// either the old or the new document, never a partial one.
type FileStore struct {
	Dir string
}

// NewFileStore creates the directory if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &FileStore{Dir: dir}, nil
}

func (f *FileStore) LoadCorrectionState(_ context.Context) (models.CorrectionState, error) {
	var s models.CorrectionState
	err := f.readJSON(correctionsFile, &s)
	return s, err
}

func (f *FileStore) SaveCorrectionState(_ context.Context, s models.CorrectionState) error {
	return f.writeJSON(correctionsFile, s)
}

func (f *FileStore) LoadModelVersion(_ context.Context) (models.ModelVersion, error) {
	var v models.ModelVersion
	err := f.readJSON(versionFile, &v)
	return v, err
}

func (f *FileStore) SaveModelVersion(_ context.Context, v models.ModelVersion) error {
	return f.writeJSON(versionFile, v)
}

func (f *FileStore) LoadClassifier(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(f.Dir, classifierFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// CommitTraining writes the artifact, then the version. When the version
// write fails the previous artifact is put back, or removed if there was none.
func (f *FileStore) CommitTraining(_ context.Context, artifact []byte, v models.ModelVersion) error {
	path := filepath.Join(f.Dir, classifierFile)
	prev, err := os.ReadFile(path)
	hadPrev := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reading %s: %w", classifierFile, err)
	}

	if err := writeAtomic(path, artifact); err != nil {
		return err
	}
	if err := f.writeJSON(versionFile, v); err != nil {
		var undo error
		if hadPrev {
			undo = writeAtomic(path, prev)
		} else {
			undo = os.Remove(path)
		}
		if undo != nil {
			return errors.Join(err, fmt.Errorf("restoring %s: %w", classifierFile, undo))
		}
		return err
	}
	return nil
}

func (f *FileStore) readJSON(name string, out interface{}) error {
	data, err := os.ReadFile(filepath.Join(f.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return nil
}

func (f *FileStore) writeJSON(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	return writeAtomic(filepath.Join(f.Dir, name), append(data, '\n'))
}

// writeAtomic replaces path with data via temp file, fsync and rename
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("renaming %s: %w", filepath.Base(path), err)
	}
	return nil
}
