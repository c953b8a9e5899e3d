// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"strings"
)

// ValidateSession checks that a session scope is present.
func ValidateSession(session string) error {
	if strings.TrimSpace(session) == "" {
		return &ValidationError{Field: "session", Reason: ErrEmptySession}
	}
	return nil
}

// ValidateKeywords checks that at least one non-blank keyword is present.
func ValidateKeywords(keywords []string) error {
	for _, k := range keywords {
		if strings.TrimSpace(k) != "" {
			return nil
		}
	}
	return &ValidationError{Field: "keywords", Reason: ErrEmptyKeywords}
}

// ValidateArticle checks that an article carries enough identity to be
// deduplicated.
//
// Validation rules:
//   - URL or Title must not be blank
//
// NOT validated:
//   - Content (may be empty for headline-only results)
//   - Published (zero means "unknown", ingestion substitutes the current day)
func ValidateArticle(article *RawArticle) error {
	if article == nil {
		return &ValidationError{Field: "article", Reason: ErrMissingIdentity}
	}
	if strings.TrimSpace(article.URL) == "" && NormalizeTitle(article.Title) == "" {
		return &ValidationError{Field: "article", Reason: ErrMissingIdentity}
	}
	return nil
}

// NormalizeKeywords trims, lowercases and deduplicates keywords, keeping
// first-seen order and dropping blanks.
func NormalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
