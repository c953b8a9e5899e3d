// Package embedding provides the Gateway that turns text and chunks into
// vectors through an ai.Embedder.
//
// The gateway splits large inputs into provider-sized sub-batches, runs
// them on an ants worker pool and reassembles the results in input order.
// A batch either succeeds completely or fails; vectors are checked for a
// consistent dimension, and provider calls may be retried with exponential
// backoff.
package embedding
