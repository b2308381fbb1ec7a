// Package embedder turns code and queries into vectors for semantic search
// and the scorer's semantic factor.
//
// Three providers are available:
//
//   - local (default): a deterministic, offline feature-hashed bag of
//     identifiers, 384 dimensions, L2 normalized. It never touches the
//     network, so it is the only provider used on the hook's hot path.
//   - jina and openai: OpenAI-compatible HTTP APIs with exponential backoff.
//     Client errors other than 429 are not retried.
//
// # Basic Usage
//
//	emb, err := embedder.NewFromConfig(embedder.Config{Provider: "local"})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: embedder.CodeText("pkg/config.go", src),
//	})
//
// # Caching
//
// Every provider shares an LRU cache keyed by model and the sha256 of the
// text. Cached vectors are copied on read, so callers may modify them.
//
// Vectors from different models are never comparable; stored embeddings
// record their dimension and the scorer treats a mismatch as unavailable.
package embedder
