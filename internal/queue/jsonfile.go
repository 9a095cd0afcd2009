package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/spf13/afero"

	"delayflow/internal/domain"
)

type JSONFileRepo struct {
	fs   afero.Fs
	path string
}

func NewJSONFileRepo(fs afero.Fs, path string) *JSONFileRepo {
	return &JSONFileRepo{fs: fs, path: path}
}

func (r *JSONFileRepo) Path() string { return r.path }

func (r *JSONFileRepo) Load(ctx context.Context) ([]domain.Task, error) {
	b, err := afero.ReadFile(r.fs, r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Task{}, nil
		}
		return nil, errors.Wrapf(err, "read %s", r.path)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return []domain.Task{}, nil
	}

	var tasks []domain.Task
	if err := json.Unmarshal(b, &tasks); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "decode %s", r.path), ErrMalformed)
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}
	return tasks, nil
}

// Save writes the collection to a sibling temp file and renames it over the
// target so readers never observe a partial write.
func (r *JSONFileRepo) Save(ctx context.Context, tasks []domain.Task) error {
	if tasks == nil {
		tasks = []domain.Task{}
	}
	b, err := json.MarshalIndent(tasks, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode tasks")
	}

	dir := filepath.Dir(r.path)
	if err := r.fs.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}
	tmp, err := afero.TempFile(r.fs, dir, "."+filepath.Base(r.path)+".*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		_ = r.fs.Remove(tmpName)
		return errors.Wrapf(err, "write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		_ = r.fs.Remove(tmpName)
		return errors.Wrapf(err, "close %s", tmpName)
	}
	if err := r.fs.Rename(tmpName, r.path); err != nil {
		_ = r.fs.Remove(tmpName)
		return errors.Wrapf(err, "replace %s", r.path)
	}
	return nil
}
