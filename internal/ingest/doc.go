// Package ingest seeds the code memory from an existing source tree.
//
// IngestDirectory walks a directory, keeps the files the CodeFilter accepts
// and stores each one as a Write-style memory (NewCode only), so the
// injection engine has history to draw on before the first hook fires.
//
// # Pipeline
//
//	walk -> filter -> read -> dedupe -> embed (per batch) -> StoreBatch
//
// Hidden directories and skip-path globs are pruned during the walk. Files
// are processed in batches on an errgroup bounded by Config.Workers; each
// batch is embedded with one GenerateBatch call and stored in a single
// transaction. A file whose latest memory already holds identical content
// counts as Unchanged, so re-running an ingest only adds what moved.
//
// Embedding failures do not fail the run: affected entries are stored
// without vectors and counted in Result.EmbedFailures.
//
// Only one ingest runs at a time per Ingester; a concurrent call returns
// ErrInProgress.
package ingest
