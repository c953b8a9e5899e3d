package ai

// SentimentLabels defines the valid sentiment classifications a language
// model may return. Anything else is normalized to SentimentNeutral.
var SentimentLabels = []string{
	SentimentPositive,
	SentimentNeutral,
	SentimentNegative,
	SentimentMixed,
}

const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
	SentimentMixed    = "mixed"
)
