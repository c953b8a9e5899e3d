package chunker

import (
	"maps"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/poiesic/newsdesk/core"
)

// DefaultSeparators lists split points from coarsest to finest: paragraph,
// line, CJK then Latin sentence ends, CJK then Latin clause punctuation,
// and finally plain spaces. Text that still does not fit falls back to a
// character window.
var DefaultSeparators = []string{
	"\n\n",
	"\n",
	"。", "！", "？",
	". ", "! ", "? ",
	"；", "，", "、",
	"; ", ", ",
	" ",
}

// MetadataChunkIndex is the metadata key holding a chunk's ordinal.
const MetadataChunkIndex = "chunk_index"

// Chunker splits documents into token-bounded, overlapping chunks.
// A Chunker is immutable after construction and safe for concurrent use.
type Chunker struct {
	size       int
	overlap    int
	counter    TokenCounter
	separators []string
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithTokenCounter replaces the default ApproxCounter.
func WithTokenCounter(counter TokenCounter) Option {
	return func(c *Chunker) error {
		c.counter = counter
		return nil
	}
}

// WithSeparators replaces DefaultSeparators.
func WithSeparators(separators ...string) Option {
	return func(c *Chunker) error {
		if len(separators) == 0 {
			return ErrNoSeparators
		}
		c.separators = separators
		return nil
	}
}

// New creates a Chunker producing chunks of at most size tokens, each
// after the first prefixed with up to overlap tokens of its predecessor.
func New(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, ErrInvalidChunkSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	c := &Chunker{
		size:       size,
		overlap:    overlap,
		counter:    ApproxCounter{},
		separators: DefaultSeparators,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Size returns the maximum tokens per chunk.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the maximum overlap tokens per chunk.
func (c *Chunker) Overlap() int { return c.overlap }

var excessNewlines = regexp.MustCompile(`\n[ \t]*\n(?:[ \t]*\n)+`)

// Normalize is the canonical form chunk spans refer to: line endings
// become \n, runs of blank lines collapse to one paragraph break and outer
// whitespace is trimmed.
func Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// Chunk splits text into ordered chunks. The bodies of the returned chunks
// partition the normalized text, so concatenating every Body() yields
// Normalize(text). Each chunk's metadata is a copy of metadata plus its
// chunk index. Empty input yields no chunks.
func (c *Chunker) Chunk(documentID, text string, metadata map[string]string) []core.TextChunk {
	source := Normalize(text)
	if source == "" {
		return nil
	}

	bodyBudget := c.size - c.overlap
	fragments := c.split(source, c.separators, bodyBudget)
	bodies := c.merge(fragments)

	chunks := make([]core.TextChunk, 0, len(bodies))
	cursor := 0
	prev := ""
	for i, body := range bodies {
		prefix := ""
		if i > 0 && c.overlap > 0 {
			prefix = c.fitPrefix(c.tail(prev, c.overlap), body)
		}
		content := prefix + body

		meta := make(map[string]string, len(metadata)+1)
		maps.Copy(meta, metadata)
		meta[MetadataChunkIndex] = strconv.Itoa(i)

		start := c.locate(source, body, cursor)
		chunks = append(chunks, core.TextChunk{
			DocumentID: documentID,
			Index:      i,
			Content:    content,
			Overlap:    len(prefix),
			TokenCount: c.counter.Count(content),
			Start:      start,
			End:        start + len(body),
			Metadata:   meta,
		})
		cursor = start + len(body)
		prev = content
	}
	return chunks
}

// locate finds body in source at or after cursor. Bodies are cut from the
// source in order so the match is normally at cursor itself.
func (c *Chunker) locate(source, body string, cursor int) int {
	if strings.HasPrefix(source[cursor:], body) {
		return cursor
	}
	if i := strings.Index(source[cursor:], body); i >= 0 {
		return cursor + i
	}
	return cursor
}

// split breaks text into fragments of at most budget tokens, trying each
// separator in turn. Separators stay attached to the fragment they end, so
// the fragments concatenate back to text.
func (c *Chunker) split(text string, separators []string, budget int) []string {
	if c.counter.Count(text) <= budget {
		return []string{text}
	}
	if len(separators) == 0 {
		return c.splitChars(text, budget)
	}

	sep, rest := separators[0], separators[1:]
	if !strings.Contains(text, sep) {
		return c.split(text, rest, budget)
	}

	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if c.counter.Count(part) <= budget {
			out = append(out, part)
			continue
		}
		out = append(out, c.split(part, rest, budget)...)
	}
	return out
}

// splitChars is the last resort for text with no usable separator. It
// takes the longest window within budget, backs off to the last whitespace
// in the window when there is one, and always consumes at least one rune.
func (c *Chunker) splitChars(text string, budget int) []string {
	var out []string
	for start := 0; start < len(text); {
		rest := text[start:]
		end := c.longestPrefix(rest, budget)
		if end < len(rest) {
			if ws := lastSpaceEnd(rest[:end]); ws > 0 {
				end = ws
			}
		}
		out = append(out, rest[:end])
		start += end
	}
	return out
}

// maxRunesPerToken bounds the character window searched for one budget, so
// a huge unbroken blob is not recounted in full for every window.
const maxRunesPerToken = 64

// longestPrefix returns the byte length of the longest rune-aligned prefix
// of text within budget tokens, but never less than one rune.
func (c *Chunker) longestPrefix(text string, budget int) int {
	offsets := runeEnds(text, max(budget, 1)*maxRunesPerToken)
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if c.counter.Count(text[:offsets[mid]]) <= budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return offsets[lo]
}

// runeEnds returns the byte offset after each of the first limit runes of
// text. A negative limit means all runes.
func runeEnds(text string, limit int) []int {
	var ends []int
	for i := 0; i < len(text); {
		if limit >= 0 && len(ends) == limit {
			break
		}
		_, w := utf8.DecodeRuneInString(text[i:])
		i += w
		ends = append(ends, i)
	}
	return ends
}

// lastSpaceEnd returns the offset just past the last whitespace rune in s,
// or 0 if s has none.
func lastSpaceEnd(s string) int {
	i := strings.LastIndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return 0
	}
	_, w := utf8.DecodeRuneInString(s[i:])
	return i + w
}

// merge greedily joins adjacent fragments. The first chunk may use the
// full size; later bodies leave room for the overlap prefix.
func (c *Chunker) merge(fragments []string) []string {
	var (
		bodies []string
		cur    strings.Builder
		tokens int
	)
	budget := c.size
	for _, f := range fragments {
		ft := c.counter.Count(f)
		if cur.Len() > 0 {
			joined := tokens + ft
			if joined > budget {
				joined = c.counter.Count(cur.String() + f)
			}
			if joined > budget {
				bodies = append(bodies, cur.String())
				cur.Reset()
				tokens = 0
				budget = c.size - c.overlap
			} else {
				ft = joined - tokens
			}
		}
		cur.WriteString(f)
		tokens += ft
	}
	if cur.Len() > 0 {
		bodies = append(bodies, cur.String())
	}
	return bodies
}

// tail returns the longest suffix of text holding at most budget tokens,
// moved forward to start on a word boundary. Text without word boundaries (CJK) is
// cut on a rune boundary.
func (c *Chunker) tail(text string, budget int) string {
	if budget <= 0 || text == "" {
		return ""
	}
	offsets := append([]int{0}, runeEnds(text, -1)...)
	// smallest start whose suffix fits
	lo, hi := 0, len(offsets)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if c.counter.Count(text[offsets[mid]:]) <= budget {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	start := offsets[lo]
	if start > 0 && start < len(text) {
		prevRune, _ := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsSpace(prevRune) {
			if i := strings.IndexFunc(text[start:], unicode.IsSpace); i >= 0 {
				start += i
			}
		}
	}
	return strings.TrimLeftFunc(text[start:], unicode.IsSpace)
}

// fitPrefix drops leading words from prefix until prefix+body fits the
// chunk size. Only needed when a counter is not additive over the join.
func (c *Chunker) fitPrefix(prefix, body string) string {
	for prefix != "" && c.counter.Count(prefix+body) > c.size {
		if i := strings.IndexFunc(prefix, unicode.IsSpace); i >= 0 {
			prefix = strings.TrimLeftFunc(prefix[i:], unicode.IsSpace)
			continue
		}
		_, w := utf8.DecodeRuneInString(prefix)
		prefix = prefix[w:]
	}
	return prefix
}
