package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// recordFile is the record name inside a kernel directory.
const recordFile = "proxy.json"

// FileStore keeps records on disk.
//
// Directory layout:
//
//	<root>/<kernel_id>/proxy.json
//	<root>/<kernel_id>/stdout.log
//	<root>/<kernel_id>/stderr.log
//
// The log files belong to the launcher; Delete only removes proxy.json.
type FileStore struct {
	root string
	now  func() time.Time
}

var _ Store = (*FileStore)(nil)

func NewFileStore(root string) *FileStore {
	return &FileStore{root: strings.TrimSpace(root), now: time.Now}
}

func (s *FileStore) RootDir() string {
	return s.root
}

func (s *FileStore) RecordPath(kernelID string) string {
	return filepath.Join(s.root, kernelID, recordFile)
}

func (s *FileStore) ensureRoot() error {
	if s.root == "" {
		return fmt.Errorf("session store root dir is empty")
	}
	return os.MkdirAll(s.root, 0755)
}

// Save writes rec atomically. SavedAt is stamped when zero.
func (s *FileStore) Save(_ context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record is nil")
	}
	id, err := validateKernelID(rec.KernelID)
	if err != nil {
		return err
	}
	if err := s.ensureRoot(); err != nil {
		return err
	}
	if rec.SavedAt.IsZero() {
		rec.SavedAt = s.now().UTC()
	}

	dir := filepath.Join(s.root, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create kernel dir: %w", err)
	}

	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	b = append(b, '\n')

	tmp, err := os.CreateTemp(dir, recordFile+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmpName, s.RecordPath(id)); err != nil {
		return fmt.Errorf("rename record: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, kernelID string) (*Record, error) {
	id, err := validateKernelID(kernelID)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.RecordPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", id, ErrNotFound)
		}
		return nil, err
	}

	trimmed := strings.TrimSpace(string(b))
	if trimmed == "" {
		return nil, fmt.Errorf("%s for %s is empty", recordFile, id)
	}
	var rec Record
	if err := json.Unmarshal([]byte(trimmed), &rec); err != nil {
		return nil, fmt.Errorf("parse %s: %w", recordFile, err)
	}
	return &rec, nil
}

func (s *FileStore) Delete(_ context.Context, kernelID string) error {
	id, err := validateKernelID(kernelID)
	if err != nil {
		return err
	}
	if err := os.Remove(s.RecordPath(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

// List returns every readable record, newest first. Unreadable entries are
// skipped.
func (s *FileStore) List(ctx context.Context) ([]Record, error) {
	if err := s.ensureRoot(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read sessions root: %w", err)
	}

	out := make([]Record, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rec, err := s.Load(ctx, entry.Name())
		if err != nil {
			continue
		}
		out = append(out, *rec)
	}
	sortNewestFirst(out)
	return out, nil
}
