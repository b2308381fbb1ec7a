// Package summarizer collapses near-duplicate ranked snippets.
//
// Snippets are clustered greedily in rank order by embedding cosine, or by
// identifier-set Jaccard overlap when embeddings are missing. Once enough
// snippets survive scoring, each multi-member cluster becomes one summary
// entry naming its files and functions; everything else is emitted
// individually under per-cluster and total caps.
package summarizer
