package model

import "context"

// RetrievedChunk is the single most relevant indexed document chunk for a
// query, as returned by the retrieval provider.
type RetrievedChunk struct {
	Text       string
	Similarity float64
	Source     string
	ChunkID    int
}

// RetrievalProvider is an optional external collaborator supplying document
// context. Implementations are read-only and safe for concurrent use across
// sessions. A nil chunk with a nil error means no index is built or nothing
// matched; the caller proceeds without document context.
type RetrievalProvider interface {
	GetRelevantContext(ctx context.Context, query string) (*RetrievedChunk, error)
}
