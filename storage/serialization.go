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


package storage

import (
	"fmt"

	"github.com/poiesic/policykb/core"
)

type serializer[T any] interface {
	Marshal(v T, bs []byte) int
	Unmarshal(bs []byte) (T, int, error)
	Size(v T) int
}

func marshal[T any](ser serializer[T], v T) []byte {
	buf := make([]byte, ser.Size(v))
	ser.Marshal(v, buf)
	return buf
}

func unmarshal[T any](ser serializer[T], data []byte) (*T, error) {
	v, _, err := ser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return &v, nil
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	return marshal[core.ID](core.IDMUS, id)
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalPolicy serializes a Policy to bytes. Images are not stored with the policy.
func MarshalPolicy(policy *core.Policy) []byte {
	return marshal[core.Policy](core.PolicyMUS, *policy)
}

// UnmarshalPolicy deserializes a Policy from bytes.
func UnmarshalPolicy(data []byte) (*core.Policy, error) {
	return unmarshal[core.Policy](core.PolicyMUS, data)
}

// MarshalChunk serializes a PolicyChunk to bytes.
func MarshalChunk(chunk *core.PolicyChunk) []byte {
	return marshal[core.PolicyChunk](core.PolicyChunkMUS, *chunk)
}

// UnmarshalChunk deserializes a PolicyChunk from bytes.
func UnmarshalChunk(data []byte) (*core.PolicyChunk, error) {
	return unmarshal[core.PolicyChunk](core.PolicyChunkMUS, data)
}

// MarshalImage serializes an Image to bytes.
func MarshalImage(image *core.Image) []byte {
	return marshal[core.Image](core.ImageMUS, *image)
}

// UnmarshalImage deserializes an Image from bytes.
func UnmarshalImage(data []byte) (*core.Image, error) {
	return unmarshal[core.Image](core.ImageMUS, data)
}

// MarshalUpdate serializes a PolicyUpdate to bytes.
func MarshalUpdate(update *core.PolicyUpdate) []byte {
	return marshal[core.PolicyUpdate](core.PolicyUpdateMUS, *update)
}

// UnmarshalUpdate deserializes a PolicyUpdate from bytes.
func UnmarshalUpdate(data []byte) (*core.PolicyUpdate, error) {
	return unmarshal[core.PolicyUpdate](core.PolicyUpdateMUS, data)
}

// MarshalIngestionRun serializes an IngestionRun to bytes.
func MarshalIngestionRun(run *core.IngestionRun) []byte {
	return marshal[core.IngestionRun](core.IngestionRunMUS, *run)
}

// UnmarshalIngestionRun deserializes an IngestionRun from bytes.
func UnmarshalIngestionRun(data []byte) (*core.IngestionRun, error) {
	return unmarshal[core.IngestionRun](core.IngestionRunMUS, data)
}
