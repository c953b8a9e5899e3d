// Package chunker splits article text into token-bounded, overlapping
// chunks ready for embedding.
//
// Text is first normalized (line endings, blank-line runs, outer
// whitespace), then split recursively on a ladder of separators from
// paragraph breaks down to single spaces, with a character window as the
// last resort. Fragments are merged greedily up to the chunk size, and
// every chunk after the first is prefixed with a word-aligned tail of its
// predecessor. The chunk bodies (content minus that prefix) partition the
// normalized text exactly, and Start/End give each body's byte span in it.
//
// Token counts come from a TokenCounter: ApproxCounter for a deterministic
// estimate, or TiktokenCounter for exact BPE counts.
package chunker
