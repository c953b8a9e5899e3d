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


package badger

import "errors"

// Store bundles every repository sharing one backend.
type Store struct {
	Backend     *Backend
	News        *NewsRepository
	Vectors     *VectorRepository
	Memory      *MemoryRepository
	Checkpoints *CheckpointRepository
}

// OpenStore opens a backend and all repositories on top of it.
// An empty path with inMemory set creates a throwaway store.
func OpenStore(path string, inMemory bool) (*Store, error) {
	backend, err := OpenBackend(path, inMemory)
	if err != nil {
		return nil, err
	}

	s := &Store{Backend: backend, Checkpoints: NewCheckpointRepository(backend)}
	if s.News, err = NewNewsRepository(backend); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.Vectors, err = NewVectorRepository(backend); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if s.Memory, err = NewMemoryRepository(backend); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	return s, nil
}

// NewMemoryStore creates an in-memory store for testing.
// Caller must Close it when done.
func NewMemoryStore() (*Store, error) {
	return OpenStore("", true)
}

// Close releases all repositories and then the backend.
func (s *Store) Close() error {
	var errs []error
	if s.Memory != nil {
		errs = append(errs, s.Memory.Close())
	}
	if s.Vectors != nil {
		errs = append(errs, s.Vectors.Close())
	}
	if s.News != nil {
		errs = append(errs, s.News.Close())
	}
	errs = append(errs, s.Backend.Close())
	return errors.Join(errs...)
}
