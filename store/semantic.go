package store

import "context"

// SemanticSearcher is implemented by drivers with a vector column. Only the
// postgres backend provides one; the capability is probed at runtime so the
// search pipeline degrades gracefully everywhere else.
type SemanticSearcher interface {
	UpsertMemoryEmbedding(ctx context.Context, userID, memoryID string, embedding []float32) error
	SemanticSearch(ctx context.Context, query *SearchQuery, embedding []float32) ([]*SearchResult, error)
}

// SupportsSemanticSearch reports whether the backend has a vector column.
func (s *Store) SupportsSemanticSearch() bool {
	_, ok := s.driver.(SemanticSearcher)
	return ok
}

// SemanticSearch ranks long-term rows by vector similarity. Backends without
// a vector column return an empty result set.
func (s *Store) SemanticSearch(ctx context.Context, query *SearchQuery, embedding []float32) ([]*SearchResult, error) {
	if err := requireUser("semantic_search", query.UserID); err != nil {
		return nil, err
	}
	semantic, ok := s.driver.(SemanticSearcher)
	if !ok {
		return []*SearchResult{}, nil
	}
	return semantic.SemanticSearch(ctx, query, embedding)
}

// AttachEmbedding stores a vector on a long-term row. A no-op on backends
// without a vector column.
func (s *Store) AttachEmbedding(ctx context.Context, userID, memoryID string, embedding []float32) error {
	if err := requireUser("attach_embedding", userID); err != nil {
		return err
	}
	semantic, ok := s.driver.(SemanticSearcher)
	if !ok {
		return nil
	}
	return semantic.UpsertMemoryEmbedding(ctx, userID, memoryID, embedding)
}
