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


package search

import "errors"

var (
	// ErrPolicyRepositoryRequired is returned when a policy repository is not provided.
	ErrPolicyRepositoryRequired = errors.New("policy repository required")

	// ErrChunkRepositoryRequired is returned when a chunk repository is not provided.
	ErrChunkRepositoryRequired = errors.New("chunk repository required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")
)

// Query errors. They are returned to the caller unchanged; nothing is corrected.
var (
	// ErrInvalidEmbedding indicates an empty or all-zero query embedding.
	ErrInvalidEmbedding = errors.New("invalid query embedding")

	// ErrInvalidThreshold indicates a similarity threshold outside [-1, 1].
	ErrInvalidThreshold = errors.New("similarity threshold must be in [-1, 1]")

	// ErrInvalidWeight indicates a vector weight outside [0, 1].
	ErrInvalidWeight = errors.New("vector weight must be in [0, 1]")

	// ErrInvalidLimit indicates a negative result limit.
	ErrInvalidLimit = errors.New("limit cannot be negative")

	// ErrInvalidWindow indicates a negative neighbor window.
	ErrInvalidWindow = errors.New("neighbor window cannot be negative")
)
