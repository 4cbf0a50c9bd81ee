package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// FileSnapshotter persists the policy as a JSON file. Writes go to a temp
// file in the same directory followed by a rename, so a crash mid-write never
// leaves a truncated snapshot behind.
type FileSnapshotter struct {
	path string
}

// NewFileSnapshotter creates a snapshotter writing to the given path.
func NewFileSnapshotter(path string) (*FileSnapshotter, error) {
	if path == "" {
		return nil, errors.New("snapshot path cannot be empty")
	}
	return &FileSnapshotter{path: path}, nil
}

// Save writes the policy atomically.
func (f *FileSnapshotter) Save(ctx context.Context, p *Policy) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy snapshot: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Load reads the last persisted policy.
func (f *FileSnapshotter) Load(ctx context.Context) (*Policy, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if p.Features == nil {
		p.Features = make(map[string]Rule)
	}
	return &p, nil
}
