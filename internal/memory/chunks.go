// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memory

import (
	"context"

	"github.com/northbound/fold/internal/metadata"
)

// ReplaceChunks passes through to the metadata store for the indexer's
// chunk-capable-language path (spec §4.10 step 6); chunk rows have no
// hash-storage or evolution involvement of their own.
func (s *Service) ReplaceChunks(ctx context.Context, parentMemoryID string, chunks []*metadata.Chunk) error {
	return s.meta.ReplaceChunks(ctx, parentMemoryID, chunks)
}
