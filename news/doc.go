// Package news defines the search provider contract used to fetch raw
// articles, plus a static provider for offline runs.
//
// The newsapi subpackage implements the contract over a NewsAPI-compatible
// HTTP endpoint.
package news
