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


// Package storage provides the storage abstraction layer for policykb.
//
// This package defines repository interfaces that decouple the knowledge store
// from ingestion and retrieval logic.
//
// # Architecture
//
//   - UnitOfWork: one read-write transaction; the ingester opens one per snapshot folder
//   - PolicyRepository: policy lookups, fan-out with images, weighted policy search
//   - ChunkRepository: positional chunk lookups, vector and full-text chunk search
//   - HistoryRepository: append-only PolicyUpdate log
//   - RunRepository: last ingestion run per base directory
//
// Chunks and images are owned by their policy. Deleting or replacing a
// policy's children happens inside the same unit of work that writes the
// policy row, so stale chunks never coexist with new ones.
//
// # Usage
//
//	store, err := badger.NewStore("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	err = store.WithUnitOfWork(ctx, func(uow storage.UnitOfWork) error {
//	    return uow.CreatePolicy(policy)
//	})
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All repository implementations must be thread-safe. Reads never block on
// writers and observe only committed state.
package storage
