// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package vectordb is the per-project vector index client (C5): every
// indexed project gets its own Qdrant collection, named by slug, holding
// one point per embedded memory or chunk.
package vectordb

import (
	"context"
	"errors"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// Match is a single vector search hit.
type Match struct {
	ID      string
	Score   float32
	Payload map[string]string
}

// Filter is a conjunction of keyed-equality constraints, e.g. {"type": "chunk"}.
type Filter map[string]string

// VectorDB is the behaviour required of a vector index backend.
type VectorDB interface {
	EnsureCollection(ctx context.Context, slug string, dim int) error
	Upsert(ctx context.Context, slug, id string, vector []float32, payload map[string]string) error
	Search(ctx context.Context, slug string, queryVector []float32, topK int, filter Filter) ([]Match, error)
	Delete(ctx context.Context, slug, id string) error
	DeleteCollection(ctx context.Context, slug string) error
	PointCount(ctx context.Context, slug string) (int, error)
}

// QdrantVectorDB is a thin wrapper around the Qdrant gRPC service clients,
// collection-scoped per project.
type QdrantVectorDB struct {
	collectionsSvc qdrant.CollectionsClient
	pointsSvc      qdrant.PointsClient
	prefix         string
	dims           map[string]int
}

// NewQdrantVectorDB constructs a wrapper around an existing gRPC connection.
// prefix is prepended to a project's slug to form its collection name
// (e.g. prefix "fold_" + slug "my-app" => collection "fold_my-app").
func NewQdrantVectorDB(conn *grpc.ClientConn, prefix string) (*QdrantVectorDB, error) {
	if conn == nil {
		return nil, errors.New("vectordb: gRPC connection is required")
	}
	return &QdrantVectorDB{
		collectionsSvc: qdrant.NewCollectionsClient(conn),
		pointsSvc:      qdrant.NewPointsClient(conn),
		prefix:         prefix,
		dims:           make(map[string]int),
	}, nil
}

func (q *QdrantVectorDB) collectionName(slug string) string {
	return q.prefix + slug
}

// EnsureCollection creates the project's collection if it doesn't exist.
// Idempotent; safe to call before every write.
func (q *QdrantVectorDB) EnsureCollection(ctx context.Context, slug string, dim int) error {
	name := q.collectionName(slug)
	if q.dims[slug] == dim {
		return nil
	}

	collections, err := q.collectionsSvc.List(ctx, &qdrant.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("vectordb: list collections: %w", err)
	}

	for _, coll := range collections.Collections {
		if coll.Name == name {
			q.dims[slug] = dim
			return nil
		}
	}

	_, err = q.collectionsSvc.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("vectordb: create collection %s: %w", name, err)
	}
	q.dims[slug] = dim
	return nil
}

// Upsert stores or updates a vector and its payload.
func (q *QdrantVectorDB) Upsert(ctx context.Context, slug, id string, vector []float32, payload map[string]string) error {
	if len(vector) == 0 {
		return errors.New("vectordb: vector cannot be empty")
	}
	if err := q.EnsureCollection(ctx, slug, len(vector)); err != nil {
		return err
	}

	qPayload := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		qPayload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}

	point := &qdrant.PointStruct{
		Id: &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
		Vectors: &qdrant.Vectors{
			VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: vector}},
		},
		Payload: qPayload,
	}

	_, err := q.pointsSvc.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collectionName(slug),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("vectordb: upsert point %s: %w", id, err)
	}
	return nil
}

// Search performs a filtered similarity search within a project's collection.
func (q *QdrantVectorDB) Search(ctx context.Context, slug string, queryVector []float32, topK int, filter Filter) ([]Match, error) {
	if len(queryVector) == 0 {
		return nil, errors.New("vectordb: query vector cannot be empty")
	}
	if topK <= 0 {
		topK = 10
	}

	req := &qdrant.SearchPoints{
		CollectionName: q.collectionName(slug),
		Vector:         queryVector,
		Limit:          uint64(topK),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
		WithVectors:    &qdrant.WithVectorsSelector{SelectorOptions: &qdrant.WithVectorsSelector_Enable{Enable: false}},
	}
	if len(filter) > 0 {
		req.Filter = buildFilter(filter)
	}

	result, err := q.pointsSvc.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vectordb: search: %w", err)
	}

	matches := make([]Match, 0, len(result.Result))
	for _, sp := range result.Result {
		var id string
		if sp.Id != nil {
			if uuid := sp.Id.GetUuid(); uuid != "" {
				id = uuid
			} else {
				id = fmt.Sprintf("%d", sp.Id.GetNum())
			}
		}
		payload := make(map[string]string, len(sp.Payload))
		for k, v := range sp.Payload {
			if s := v.GetStringValue(); s != "" {
				payload[k] = s
			}
		}
		matches = append(matches, Match{ID: id, Score: sp.Score, Payload: payload})
	}
	return matches, nil
}

func buildFilter(filter Filter) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filter))
	for k, v := range filter {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   k,
					Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

// Delete removes a single point from a project's collection.
func (q *QdrantVectorDB) Delete(ctx context.Context, slug, id string) error {
	_, err := q.pointsSvc.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collectionName(slug),
		Points: &qdrant.PointsSelector{PointsSelectorOneOf: &qdrant.PointsSelector_Points{
			Points: &qdrant.PointsIdsList{Ids: []*qdrant.PointId{
				{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}},
			}},
		}},
	})
	if err != nil {
		return fmt.Errorf("vectordb: delete point %s: %w", id, err)
	}
	return nil
}

// DeleteCollection drops a project's entire collection (used when a
// project is removed).
func (q *QdrantVectorDB) DeleteCollection(ctx context.Context, slug string) error {
	_, err := q.collectionsSvc.Delete(ctx, &qdrant.DeleteCollection{CollectionName: q.collectionName(slug)})
	if err != nil {
		return fmt.Errorf("vectordb: delete collection %s: %w", slug, err)
	}
	delete(q.dims, slug)
	return nil
}

// PointCount returns the number of points currently stored for a project.
func (q *QdrantVectorDB) PointCount(ctx context.Context, slug string) (int, error) {
	info, err := q.collectionsSvc.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: q.collectionName(slug)})
	if err != nil {
		return 0, fmt.Errorf("vectordb: get collection info: %w", err)
	}
	if info.Result == nil || info.Result.PointsCount == nil {
		return 0, nil
	}
	return int(*info.Result.PointsCount), nil
}
