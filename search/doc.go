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


// Package search implements retrieval over the policy knowledge store.
//
// The Searcher answers four kinds of chunk queries:
//   - Full-text search, ANDing query terms and ranking with BM25
//   - Vector search by cosine similarity above a threshold
//   - Hybrid search, blending both signals as w*vector + (1-w)*text
//   - Neighbor expansion around a chunk within its policy
//
// Chunk results can be fanned out to their policies, and policies can be
// searched directly through the title-weighted policy index. Every
// operation is read-only and sees only committed state.
package search
