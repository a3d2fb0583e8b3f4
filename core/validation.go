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
	"fmt"
	"strings"
)

// ParseScrapeTimestamp validates s as a fixed-width scrape timestamp.
func ParseScrapeTimestamp(s string) (ScrapeTimestamp, error) {
	if len(s) != ScrapeTimestampWidth {
		return "", fmt.Errorf("%w: %q", ErrInvalidScrapeTimestamp, s)
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidScrapeTimestamp, s)
		}
	}
	return ScrapeTimestamp(s), nil
}

// ValidatePolicy validates a Policy according to domain rules.
//
// Validation rules:
//   - Title must not be blank
//   - ScrapeTimestamp, when present, must be 20 digits
//
// NOT validated:
//   - Content fields (an empty document still versions correctly)
//   - ID (0 is valid until the store assigns one)
func ValidatePolicy(policy *Policy) error {
	if policy == nil {
		return fmt.Errorf("%w: policy is nil", ErrInvalidPolicy)
	}

	if strings.TrimSpace(policy.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidPolicy, ErrEmptyTitle)
	}

	if ts := policy.Metadata.ScrapeTimestamp; !ts.IsZero() {
		if _, err := ParseScrapeTimestamp(string(ts)); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPolicy, err)
		}
	}

	return nil
}

// ValidateChunk validates a PolicyChunk before it is stored.
func ValidateChunk(chunk *PolicyChunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if chunk.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidChunk, chunk.Index)
	}
	return nil
}

// ValidateUpdateAction validates that an UpdateAction has a known value.
func ValidateUpdateAction(action UpdateAction) error {
	switch action {
	case UpdateActionCreate, UpdateActionUpdate, UpdateActionDelete, UpdateActionDeleteFailed:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidUpdateAction, action)
}
