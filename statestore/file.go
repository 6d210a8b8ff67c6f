package statestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/worklist/model"
)

// FileStore keeps one YAML document per work list in a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates a FileStore writing to dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

type fileIdentity struct {
	TableID int64 `yaml:"tableId"`
	RowID   int64 `yaml:"rowId"`
}

type fileDocument struct {
	Current *fileIdentity `yaml:"current,omitempty"`
	Items   []Entry       `yaml:"items"`
}

func (s *FileStore) path(workList string) string {
	return filepath.Join(s.dir, workList+".state.yaml")
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context, workList string) (Document, error) {
	if err := ValidateName(workList); err != nil {
		return Document{}, err
	}

	data, err := os.ReadFile(s.path(workList))
	if errors.Is(err, fs.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return Document{}, err
	}

	var fd fileDocument
	if err := yaml.Unmarshal(data, &fd); err != nil {
		return Document{}, fmt.Errorf("decode state of %s: %w", workList, err)
	}

	doc := NewDocument()
	for _, e := range fd.Items {
		if err := doc.Add(e); err != nil {
			return Document{}, fmt.Errorf("decode state of %s: %w", workList, err)
		}
	}
	if fd.Current != nil {
		doc.Current = &model.Identity{TableID: fd.Current.TableID, RowID: fd.Current.RowID}
	}
	return doc, nil
}

// Save implements Store. The file is replaced atomically.
func (s *FileStore) Save(_ context.Context, workList string, doc Document) error {
	if err := ValidateName(workList); err != nil {
		return err
	}

	fd := fileDocument{Items: doc.Entries()}
	if doc.Current != nil {
		fd.Current = &fileIdentity{TableID: doc.Current.TableID, RowID: doc.Current.RowID}
	}

	data, err := yaml.Marshal(&fd)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path(workList))
}
