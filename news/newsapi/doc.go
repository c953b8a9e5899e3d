// Package newsapi implements news.Provider over a NewsAPI-compatible
// "everything" endpoint.
//
// Keywords are quoted and ORed into a single query. Results are sorted by
// publish date; language, country and the recency window map onto the
// endpoint's query parameters.
package newsapi
