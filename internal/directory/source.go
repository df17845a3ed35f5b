package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
)

// StaticSource serves a snapshot loaded at startup, replaceable at runtime by
// a collector refresh. Replace is copy-and-swap; readers never observe a
// partial update.
type StaticSource struct {
	data atomic.Pointer[Dataset]
}

// NewStaticSource seeds the source. A nil dataset becomes an empty one.
func NewStaticSource(d *Dataset) *StaticSource {
	s := &StaticSource{}
	if d == nil {
		d = New()
	}
	s.data.Store(d.Clone())
	return s
}

// Snapshot returns a copy of the current dataset.
func (s *StaticSource) Snapshot(_ context.Context) (*Dataset, error) {
	return s.data.Load().Clone(), nil
}

// Replace swaps in a new dataset.
func (s *StaticSource) Replace(d *Dataset) {
	if d == nil {
		d = New()
	}
	s.data.Store(d.Clone())
}

// LoadFile reads a dataset from a JSON file of the collector's export shape:
// {"columns": [...], "rows": [[...], ...]}.
func LoadFile(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory: read dataset: %w", err)
	}
	var d Dataset
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("directory: decode dataset: %w", err)
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return nil, fmt.Errorf("directory: row %d has %d cells, want %d", i, len(row), len(d.Columns))
		}
	}
	return &d, nil
}
