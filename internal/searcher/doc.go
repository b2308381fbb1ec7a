// Package searcher implements hybrid search over the code memory knowledge base.
//
// The searcher provides three search modes:
//   - Hybrid: weighted BM25 keyword + embedding similarity (default)
//   - Vector: semantic search using embeddings only
//   - Keyword: BM25 full-text search only
//
// # Basic Usage
//
//	s := searcher.New(store, emb, searcher.DefaultConfig())
//
//	resp, err := s.Search(ctx, searcher.Request{
//	    Query: searcher.ExtractTerms(content, filePath),
//	    Limit: 5,
//	})
//
//	candidates := resp.Candidates() // ready for the injector
//
// # Scoring
//
// Hybrid mode runs both passes concurrently and merges them by entry ID:
//
//	score = fts_weight*fts + semantic_weight*semantic   (0.4 / 0.6)
//
// The keyword score normalizes bm25() ranks against the strongest hit of the
// query: the best match scores 1 and weaker hits approach 1/(max+1). The
// semantic score is the cosine between the query embedding and up to
// ScanLimit stored embeddings, clamped at 0. Vectors from a different model
// or of a different width are skipped.
//
// Either pass may fail on its own (an embedding provider outage, say). The
// search then degrades to the other pass and reports the cause in
// Response.SemanticError.
//
// Results below the threshold are dropped unless KeepTextHits is set and the
// entry matched the keyword pass. Ties break on recency, newest first.
//
// # Caching
//
// Responses are cached in an LRU keyed by the normalized request for
// Config.CacheTTL. Call InvalidateCache after storing new memories.
package searcher
