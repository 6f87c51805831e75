package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"SignalDesk/internal/domain/models"
)

// JSONFileHistory keeps the newest maxRecords evaluations in one JSON array
// file. Every append rewrites the file through a temp file and rename, so a
// crash leaves either the old or the new array on disk.
type JSONFileHistory struct {
	mu         sync.Mutex
	path       string
	maxRecords int
	records    []models.Evaluation
}

// NewJSONFileHistory loads path if it exists. A corrupt file is an error
// rather than silently truncated history.
func NewJSONFileHistory(path string, maxRecords int) (*JSONFileHistory, error) {
	if maxRecords <= 0 {
		maxRecords = 100
	}
	h := &JSONFileHistory{path: path, maxRecords: maxRecords}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return h, nil
	case err != nil:
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, &h.records); err != nil {
			return nil, fmt.Errorf("decode history %s: %w", path, err)
		}
	}
	h.trim()
	return h, nil
}

func (h *JSONFileHistory) Append(_ context.Context, ev models.Evaluation) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.records = append(h.records, ev)
	h.trim()
	return h.flush()
}

func (h *JSONFileHistory) Recent(_ context.Context, f models.HistoryFilter) ([]models.Evaluation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return filterRecent(h.records, f), nil
}

func (h *JSONFileHistory) Close() error { return nil }

func (h *JSONFileHistory) trim() {
	if n := len(h.records); n > h.maxRecords {
		h.records = append([]models.Evaluation(nil), h.records[n-h.maxRecords:]...)
	}
}

func (h *JSONFileHistory) flush() error {
	b, err := json.MarshalIndent(h.records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}

	dir := filepath.Dir(h.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(h.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpName, h.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}
