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

// Package retrieval finds the stored news records most relevant to a query
// within a session.
//
// The Searcher combines:
//   - Semantic search over the session's chunk vectors
//   - Keyword search over the records' accumulated keywords
//   - Verbatim matching of query words with stop-word filtering
//
// Chunk matches are grouped per record, and records are scored and ranked
// on those signals. The pipeline's Analyze stage uses it to pick the
// articles it summarizes.
package retrieval
