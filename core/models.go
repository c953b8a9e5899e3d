package core

import (
	"encoding/binary"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// RawArticle is an article as returned by a search provider, before ingestion.
type RawArticle struct {
	Title     string
	Content   string
	URL       string
	Source    string
	Published time.Time
	Keywords  []string
}

// NewsRecord is a deduplicated, persisted news article scoped to a session.
type NewsRecord struct {
	Id           ID
	Session      string
	Title        string
	Content      string
	URL          string    // Optional; unique per session when present
	Source       string
	Date         time.Time // Publish date, used for expiry and range scans
	Keywords     []string  // Ordered oldest-added first
	Embedded     bool
	ExpireDays   int
	UpdatedCount int
	InsertedAt   time.Time
	UpdatedAt    time.Time
}

// DocumentID names the record as the owner of chunks and vectors.
func (r *NewsRecord) DocumentID() string {
	return NewsDocumentID(r.Id)
}

// NewsDocumentID formats a record ID as "news:<id>".
func NewsDocumentID(id ID) string {
	return "news:" + strconv.FormatUint(uint64(id), 10)
}

// DedupKey returns the identity of the record within its session.
func (r *NewsRecord) DedupKey() string {
	return DedupKey(r.Session, r.URL, r.Title)
}

// DedupKey builds the identity used to decide whether two articles are the
// same: the URL when present, otherwise the normalized title.
func DedupKey(session, url, title string) string {
	if url = strings.TrimSpace(url); url != "" {
		return session + "\x00u:" + url
	}
	return session + "\x00t:" + NormalizeTitle(title)
}

// NormalizeTitle lowercases a title, drops punctuation and collapses whitespace.
func NormalizeTitle(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	space := false
	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r):
			space = true
		}
	}
	return b.String()
}

// TextChunk is a bounded segment of a document sized for embedding.
// Content holds the overlap prefix followed by the chunk body; Overlap is
// the byte length of that prefix.
type TextChunk struct {
	DocumentID string
	Index      int
	Content    string
	Overlap    int
	TokenCount int
	Start      int // Byte offset of the body in the normalized source
	End        int
	Metadata   map[string]string
}

// Body returns the chunk content without its overlap prefix.
func (c TextChunk) Body() string {
	return c.Content[c.Overlap:]
}

// ID returns the stable chunk identifier "<document>:<index>". Re-chunking
// the same document yields the same IDs, so re-indexing overwrites.
func (c TextChunk) ID() string {
	return c.DocumentID + ":" + strconv.Itoa(c.Index)
}

// EmbeddingVector is the embedding of a single chunk.
type EmbeddingVector struct {
	ChunkID   string
	Vector    []float32
	Dimension int
	Provider  string
}

// Vector metadata keys.
const (
	// MetadataSourceID names the owning record.
	MetadataSourceID = "source_id"
	// MetadataText holds the embedded chunk text.
	MetadataText = "text"
)

// VectorEntry is a vector stored in an index together with its metadata.
type VectorEntry struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// SourceID returns the owning record reference from the entry metadata.
func (e *VectorEntry) SourceID() string {
	return e.Metadata[MetadataSourceID]
}

// Match is a single similarity query hit.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// MemoryEntry is a summary of one pipeline run kept as session context for
// later analyses.
type MemoryEntry struct {
	Session   string
	Query     string
	Summary   string
	Keywords  []string
	CreatedAt time.Time
}
