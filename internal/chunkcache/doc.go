// Package chunkcache memoizes chunking results.
//
// Entries are keyed by (file path, content hash, max chunk tokens). Because
// the key includes the content hash, an edit to a file simply misses and the
// old entry ages out through TTL or LRU eviction:
//
//	cache, err := chunkcache.New(chunkcache.Config{MaxEntries: 256, TTL: 10 * time.Minute})
//	c := chunker.New(chunker.WithCache(cache))
//
// A long-lived server owns one cache for its lifetime; a one-shot hook
// process builds a fresh one per call.
package chunkcache
