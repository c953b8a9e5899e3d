package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/newsdesk/core"
)

// Key prefixes for different data types. Every prefix ends in ':' so no
// prefix is a prefix of another.
const (
	newsRecordPrefix  = "news:"
	newsDedupPrefix   = "newsk:"
	newsDatePrefix    = "newsd:"
	newsSessionPrefix = "newss:"
	newsIDSeq         = "newsseq"

	vectorPrefix       = "vec:"
	vectorSourcePrefix = "vecs:"
	vectorDimPrefix    = "vecm:"
	vectorSeq          = "vecseq"

	memoryPrefix = "mem:"
	memorySeq    = "memseq"

	checkpointPrefix = "chkpt:"
)

// scopeSep separates a variable-length scope (session or index name) from
// the rest of a composite key.
const scopeSep = 0x00

// makeNewsKey generates a key for a news record by ID.
func makeNewsKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s%d", newsRecordPrefix, id))
}

// makeDedupKey generates the unique index key for a record's dedup identity.
// The identity is hashed so arbitrarily long URLs and titles produce
// fixed-size keys.
// Format: prefix hash(dedup)
func makeDedupKey(dedup string) []byte {
	buf := make([]byte, len(newsDedupPrefix)+8)
	offset := copy(buf, newsDedupPrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.IDFromContent(dedup)))
	return buf
}

// sortableMicros encodes t as microseconds since the epoch with the sign
// bit flipped, so big-endian bytes order dates before 1970 first.
func sortableMicros(t time.Time) uint64 {
	return uint64(t.UnixMicro()) ^ 1<<63
}

// makeNewsDateKey generates a composite key for the (session, date) index.
// Format: prefix session 0x00 timestamp id
func makeNewsDateKey(session string, date time.Time, id core.ID) []byte {
	buf := makeScopedKey(newsDatePrefix, session, 16)
	offset := len(buf) - 16
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], sortableMicros(date))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makePartialNewsDateKey generates a partial key for date range queries.
// Format: prefix session 0x00 timestamp
func makePartialNewsDateKey(session string, date time.Time) []byte {
	buf := makeScopedKey(newsDatePrefix, session, 8)
	binary.BigEndian.PutUint64(buf[len(buf)-8:], sortableMicros(date))
	return buf
}

// makeNewsSessionKey marks a session as having stored records.
func makeNewsSessionKey(session string) []byte {
	return []byte(newsSessionPrefix + session)
}

// makeVectorKey generates a key for a vector entry.
// Format: prefix index 0x00 id
func makeVectorKey(index, id string) []byte {
	buf := makeScopedKey(vectorPrefix, index, len(id))
	copy(buf[len(buf)-len(id):], id)
	return buf
}

// makeVectorSourceKey generates the secondary index key mapping a source to
// one of its vectors.
// Format: prefix index 0x00 source 0x00 id
func makeVectorSourceKey(index, source, id string) []byte {
	buf := makeScopedKey(vectorSourcePrefix, index, len(source)+1+len(id))
	offset := len(buf) - len(source) - 1 - len(id)
	offset += copy(buf[offset:], source)
	buf[offset] = scopeSep
	copy(buf[offset+1:], id)
	return buf
}

// makePartialVectorSourceKey generates the scan prefix for one source.
func makePartialVectorSourceKey(index, source string) []byte {
	buf := makeScopedKey(vectorSourcePrefix, index, len(source)+1)
	copy(buf[len(buf)-len(source)-1:], source)
	buf[len(buf)-1] = scopeSep
	return buf
}

// makeVectorDimKey generates the key holding an index's dimension.
func makeVectorDimKey(index string) []byte {
	return []byte(vectorDimPrefix + index)
}

// makeMemoryKey generates a key for a memory entry ordered by creation time.
// Format: prefix session 0x00 timestamp seq
func makeMemoryKey(session string, created time.Time, seq uint64) []byte {
	buf := makeScopedKey(memoryPrefix, session, 16)
	offset := len(buf) - 16
	binary.BigEndian.PutUint64(buf[offset:], sortableMicros(created))
	binary.BigEndian.PutUint64(buf[offset+8:], seq)
	return buf
}

// makeCheckpointKey generates a key for a batch job checkpoint.
func makeCheckpointKey(name string) []byte {
	return []byte(checkpointPrefix + name)
}

// makeScopePrefix returns prefix scope 0x00, the common prefix of every key
// in a scope.
func makeScopePrefix(prefix, scope string) []byte {
	return makeScopedKey(prefix, scope, 0)
}

// makeScopedKey allocates prefix scope 0x00 followed by extra zero bytes
// for the caller to fill.
func makeScopedKey(prefix, scope string, extra int) []byte {
	buf := make([]byte, len(prefix)+len(scope)+1+extra)
	offset := copy(buf, prefix)
	offset += copy(buf[offset:], scope)
	buf[offset] = scopeSep
	return buf
}
