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


// Package ai provides abstractions for the AI services used by the knowledge store.
//
// The package defines the two collaborators ingestion depends on:
//
//   - Embedder: Generates vector embeddings from text
//   - Chunker: Splits document text into overlapping pieces
//
// AIProvider aggregates both for convenient initialization.
//
// # Implementation Packages
//
//   - ai/openai: Embedder for OpenAI-compatible APIs, rate limited
//   - ai/splitter: Chunker built on langchaingo's recursive character splitter
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder, mock.NewMockChunker)
// return concrete types so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	chunks, err := provider.Chunker().Chunk(text, 1000, 200)
//	vectors, err := provider.Embedder().EmbedTexts(ctx, chunks)
package ai
