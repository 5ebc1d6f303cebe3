// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import "context"

// MockVectorDB is a no-op implementation used when no Qdrant endpoint is
// configured, so the rest of the pipeline keeps running (just without
// semantic search).
type MockVectorDB struct{}

// NewMockVectorDB constructs a mock vector database.
func NewMockVectorDB() VectorDB {
	return &MockVectorDB{}
}

func (m *MockVectorDB) EnsureCollection(ctx context.Context, slug string, dim int) error {
	return nil
}

func (m *MockVectorDB) Upsert(ctx context.Context, slug, id string, vector []float32, payload map[string]string) error {
	return nil
}

func (m *MockVectorDB) Search(ctx context.Context, slug string, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	return []Match{}, nil
}

func (m *MockVectorDB) Delete(ctx context.Context, slug, id string) error {
	return nil
}

func (m *MockVectorDB) DeleteCollection(ctx context.Context, slug string) error {
	return nil
}

func (m *MockVectorDB) PointCount(ctx context.Context, slug string) (int, error) {
	return 0, nil
}
