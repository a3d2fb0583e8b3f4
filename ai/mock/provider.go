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


package mock

import (
	"sync/atomic"

	"github.com/poiesic/policykb/ai"
)

// MockProvider bundles a MockEmbedder and a MockChunker behind ai.AIProvider.
type MockProvider struct {
	embedder *MockEmbedder
	chunker  *MockChunker
	closed   atomic.Int32
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider returns a provider with a deterministic embedder and the
// default chunker. Type-assert to *MockProvider to reach the mocks.
func NewMockProvider() ai.AIProvider {
	return NewMockProviderWithServices(NewMockEmbedder(), NewMockChunker())
}

// NewMockProviderWithServices wraps the given mocks.
func NewMockProviderWithServices(embedder *MockEmbedder, chunker *MockChunker) ai.AIProvider {
	return &MockProvider{embedder: embedder, chunker: chunker}
}

func (p *MockProvider) Embedder() ai.Embedder { return p.embedder }

func (p *MockProvider) Chunker() ai.Chunker { return p.chunker }

// Close counts calls so tests can check the provider was released once.
func (p *MockProvider) Close() error {
	p.closed.Add(1)
	return nil
}

// CloseCount reports how many times Close was called.
func (p *MockProvider) CloseCount() int {
	return int(p.closed.Load())
}

func (p *MockProvider) GetMockEmbedder() *MockEmbedder { return p.embedder }

func (p *MockProvider) GetMockChunker() *MockChunker { return p.chunker }
