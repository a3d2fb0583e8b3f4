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

import "errors"

// Domain validation errors
var (
	// ErrInvalidPolicy indicates a Policy failed validation.
	ErrInvalidPolicy = errors.New("invalid policy")

	// ErrInvalidChunk indicates a PolicyChunk failed validation.
	ErrInvalidChunk = errors.New("invalid policy chunk")

	// ErrInvalidScrapeTimestamp indicates a version marker is not a 20-digit number.
	ErrInvalidScrapeTimestamp = errors.New("scrape timestamp must be 20 digits")

	// ErrEmptyTitle indicates the policy Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrEmptyContent indicates a content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidUpdateAction indicates an unknown history action.
	ErrInvalidUpdateAction = errors.New("invalid update action")

	// ErrTruncatedRecord indicates a stored record ended before all fields were read.
	ErrTruncatedRecord = errors.New("truncated record")
)

// Ingestion item errors. Each one fails a single snapshot folder, never the run.
var (
	// ErrMissingContent indicates a snapshot folder lacks content.md or content.txt.
	ErrMissingContent = errors.New("missing snapshot content")

	// ErrEmbeddingCountMismatch indicates the embedder returned a different
	// number of vectors than chunks it was given.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrDuplicateTitle indicates another writer already owns the title.
	ErrDuplicateTitle = errors.New("duplicate policy title")
)
