package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryIndex is an in-memory vector index using brute-force inner product
// search, persisted to disk as JSON between runs. Inner product over
// unit-normalized vectors equals cosine similarity.
type MemoryIndex struct {
	dimensions int
	records    map[string]*Record
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		records:    make(map[string]*Record),
	}, nil
}

// Upsert stores or replaces the vector for an article. Every non-deleted
// article has at most one record.
func (m *MemoryIndex) Upsert(ctx context.Context, articleID string, vec []float32, meta Metadata) error {
	if len(vec) != m.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	cp := make([]float32, m.dimensions)
	copy(cp, vec)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[articleID] = &Record{ArticleID: articleID, Vector: cp, Meta: meta}
	return nil
}

// Query returns the top-k records by inner product, highest score first.
// An empty index returns no results and no error.
func (m *MemoryIndex) Query(ctx context.Context, vec []float32, k int) ([]*Result, error) {
	if len(vec) != m.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(vec), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if k <= 0 || len(m.records) == 0 {
		return nil, nil
	}
	results := make([]*Result, 0, len(m.records))
	for _, rec := range m.records {
		var dot float64
		for i := 0; i < m.dimensions; i++ {
			dot += float64(vec[i] * rec.Vector[i])
		}
		results = append(results, &Result{
			ArticleID: rec.ArticleID,
			Score:     math.Max(0, math.Min(1, dot)),
			Meta:      rec.Meta,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Get returns the stored record for an article, or ErrNotIndexed.
func (m *MemoryIndex) Get(ctx context.Context, articleID string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[articleID]
	if !ok {
		return nil, fmt.Errorf("article %s: %w", articleID, ErrNotIndexed)
	}
	return rec, nil
}

// Delete removes records by article id and returns how many existed.
func (m *MemoryIndex) Delete(ctx context.Context, articleIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for _, id := range articleIDs {
		if _, ok := m.records[id]; ok {
			delete(m.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// IDs returns every indexed article id.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Size returns the number of records in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

type indexFile struct {
	Dimensions int       `json:"dimensions"`
	Records    []*Record `json:"records"`
}

// Save persists the index to path. Directory is created if needed.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	m.mu.RLock()
	file := indexFile{Dimensions: m.dimensions, Records: make([]*Record, 0, len(m.records))}
	for _, rec := range m.records {
		file.Records = append(file.Records, rec)
	}
	m.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	data, err := json.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write index file: %w", err)
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents.
// Dimensions must match. A missing file is not an error; the index is
// simply left empty (it is rebuildable from the relational store).
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read index file: %w", err)
	}
	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("unmarshal index: %w", err)
	}
	if file.Dimensions != m.dimensions {
		return fmt.Errorf("dimension mismatch: file has %d, index expects %d", file.Dimensions, m.dimensions)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = make(map[string]*Record, len(file.Records))
	for _, rec := range file.Records {
		m.records[rec.ArticleID] = rec
	}
	return nil
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
