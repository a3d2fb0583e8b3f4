// Package reembed rewrites the embeddings of stored policy chunks.
//
// Use it after switching embedding models, or to fill in chunks whose
// embedding failed during ingestion. Chunks are read policy by policy,
// embedded in batches on a worker pool with retry and exponential backoff,
// and written back in place. Chunk text, indices and IDs never change.
package reembed
