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
	"errors"
	"fmt"
)

// Error taxonomy shared by all components.
var (
	// ErrValidation indicates a request was rejected before any work started.
	ErrValidation = errors.New("validation failed")

	// ErrCollaborator indicates an external collaborator (search, embedding,
	// language model, store) failed.
	ErrCollaborator = errors.New("collaborator failed")

	// ErrDimensionMismatch indicates a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrConflict indicates a concurrent write to the same key lost.
	ErrConflict = errors.New("concurrency conflict")

	// ErrEmptySession indicates the session scope is empty.
	ErrEmptySession = errors.New("session cannot be empty")

	// ErrEmptyKeywords indicates a search request carried no keywords.
	ErrEmptyKeywords = errors.New("keywords cannot be empty")

	// ErrMissingIdentity indicates an article has neither a URL nor a title.
	ErrMissingIdentity = errors.New("article has no url or title")
)

// ValidationError describes a single rejected request field.
type ValidationError struct {
	Field  string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrValidation, e.Field, e.Reason)
}

// Unwrap exposes both ErrValidation and the reason to errors.Is.
func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Reason}
}

// CollaboratorError attributes a failure to a named external collaborator.
type CollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrCollaborator, e.Collaborator, e.Err)
}

func (e *CollaboratorError) Unwrap() []error {
	return []error{ErrCollaborator, e.Err}
}

// NewCollaboratorError wraps err as a failure of the named collaborator.
// A nil err returns nil.
func NewCollaboratorError(collaborator string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CollaboratorError
	if errors.As(err, &ce) {
		return err
	}
	return &CollaboratorError{Collaborator: collaborator, Err: err}
}
