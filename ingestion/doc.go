// Package ingestion turns snapshot folders into stored policies.
//
// An Ingester scans a base directory, and for each snapshot folder, in folder
// name order, opens one unit of work in which:
//   - the Resolver decides whether to create, update or skip the policy
//   - the Writer reads the snapshot content, writes the Policy row, its
//     images and its chunks (chunked by an ai.Chunker and embedded by an
//     ai.Embedder once per policy)
//   - a create or update entry is appended to the policy history
//
// A failing folder rolls back only its own unit of work. Every folder
// produces a Result; the run ends with a Summary of created, updated,
// skipped and errored counts.
package ingestion
