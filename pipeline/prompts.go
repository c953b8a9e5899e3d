package pipeline

import (
	"fmt"
	"strings"

	"github.com/poiesic/newsdesk/ai"
	"github.com/poiesic/newsdesk/core"
	"github.com/poiesic/newsdesk/retrieval"
)

// Sampling settings per stage.
const (
	analysisTemperature  = 0.3
	analysisMaxTokens    = 1024
	cardTemperature      = 0.5
	cardMaxTokens        = 256
	sentimentTemperature = 0.0
	sentimentMaxTokens   = 768

	// excerptRunes bounds the article text quoted in card and sentiment
	// prompts.
	excerptRunes = 1200
	// sentimentExcerptRunes is shorter since every article shares one prompt.
	sentimentExcerptRunes = 300
)

const analysisSystemPrompt = `You are a news analyst. Answer the user's question using only the numbered news excerpts provided.
Cite excerpts by their number in square brackets, for example [2].
If the excerpts do not answer the question, say so plainly.
Be concise: a short overview paragraph followed by the key developments as bullet points.`

const cardSystemPrompt = `You write news cards: a two or three sentence summary of a single article for a busy reader.
Use only facts stated in the article. Do not add a headline, preamble or commentary.`

const sentimentSystemPrompt = `You classify the sentiment of news articles.
Answer with a single JSON object and nothing else, using this shape:
{"overall": "positive|negative|neutral|mixed", "score": <number from -1 to 1>, "summary": "<one sentence>",
 "articles": [{"index": <article number>, "sentiment": "positive|negative|neutral", "score": <number from -1 to 1>}]}`

// excerpt shortens text to at most n runes on a word boundary.
func excerpt(text string, n int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	cut := string(runes[:n])
	if i := strings.LastIndexAny(cut, " \n\t"); i > n/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func buildAnalysisPrompt(query string, hits []*retrieval.Hit) string {
	var b strings.Builder
	b.WriteString("News excerpts:\n\n")
	for i, h := range hits {
		r := h.Record
		fmt.Fprintf(&b, "[%d] %s", i+1, r.Title)
		if r.Source != "" {
			fmt.Fprintf(&b, " (%s)", r.Source)
		}
		if !r.Date.IsZero() {
			fmt.Fprintf(&b, ", %s", r.Date.UTC().Format("2006-01-02"))
		}
		b.WriteString("\n")
		if len(h.Chunks) == 0 {
			b.WriteString(excerpt(r.Content, excerptRunes))
			b.WriteString("\n")
		}
		for _, c := range h.Chunks {
			b.WriteString(c.Metadata[core.MetadataText])
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Question: %s", query)
	return b.String()
}

// historyMessages turns session memory, newest first, into conversation
// history, oldest first.
func historyMessages(entries []*core.MemoryEntry) []ai.Message {
	msgs := make([]ai.Message, 0, 2*len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		msgs = append(msgs,
			ai.Message{Role: ai.RoleUser, Content: e.Query},
			ai.Message{Role: ai.RoleAssistant, Content: e.Summary},
		)
	}
	return msgs
}

func buildCardPrompt(r *core.NewsRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", r.Title)
	if r.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", r.Source)
	}
	if !r.Date.IsZero() {
		fmt.Fprintf(&b, "Published: %s\n", r.Date.UTC().Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "\n%s", excerpt(r.Content, excerptRunes))
	return b.String()
}

func buildSentimentPrompt(records []*core.NewsRecord) string {
	var b strings.Builder
	b.WriteString("Articles:\n\n")
	for i, r := range records {
		fmt.Fprintf(&b, "%d. %s\n%s\n\n", i+1, r.Title, excerpt(r.Content, sentimentExcerptRunes))
	}
	return strings.TrimSpace(b.String())
}
