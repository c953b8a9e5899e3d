// Package vectorize turns stored news records into indexed vectors.
//
// A BatchProcessor chunks records, embeds the chunks through the embedding
// gateway and writes one vector per chunk to the session's index, tagged
// with the owning record and the chunk text. A Reindexer rebuilds a whole
// session index in checkpointed batches with progress reporting.
package vectorize
