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


// Package storage provides the storage abstraction layer for newsdesk.
//
// This package defines repository interfaces that decouple storage implementation
// from business logic. The BadgerDB implementation lives in storage/badger.
//
// # Architecture
//
// The storage layer follows the Repository pattern:
//
//   - NewsRepository: news records with a unique dedup index and a
//     (session, date) index for range scans
//   - VectorRepository: vector index entries grouped by index name, with a
//     source index for delete-by-source
//   - MemoryRepository: per-session memory appended by pipeline runs
//   - CheckpointRepository: progress markers for resumable batch jobs
//
// # Usage
//
// Open every repository on one database:
//
//	store, err := badger.OpenStore("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Atomicity
//
// NewsRepository.UpsertNews performs lookup, merge and write in a single
// transaction keyed by the record's dedup identity. Concurrent upserts of
// the same article conflict on commit; the loser receives ErrConflict and
// is expected to retry, at which point it finds the winner's record and
// merges into it.
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
