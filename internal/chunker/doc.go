// Package chunker divides source files into semantic units for injection.
//
// Units are created at natural code boundaries (functions, methods, classes,
// import blocks and constant groups) so that a rendered snippet keeps its
// meaning. Every unit carries its line range, a token estimate and a SHA-256
// content hash.
//
// # Basic Usage
//
//	c := chunker.New(chunker.WithMaxChunkTokens(500), chunker.WithCache(cache))
//	units, err := c.Chunk(ctx, "/src/app/service.py", content, language.Python)
//	for _, u := range units {
//	    fmt.Printf("%s %s: lines %d-%d (%d tokens)\n",
//	        u.ChunkType, u.Name, u.StartLine, u.EndLine, u.TokenCount)
//	}
//
// # Strategies
//
// Each language maps to a Strategy in a flat table. The structural step
// (go/ast for Go, tree-sitter for Python, JavaScript, TypeScript, Rust, Java
// and Kotlin) is tried first. A parse error or panic falls back to the
// language family's signature patterns; a file without any signature is cut
// into fixed line blocks, and a failing heuristic yields one whole-file block.
//
// # Chunk Sizing
//
// A unit whose estimate exceeds the token ceiling is split on line
// boundaries into parts named "name (part i/n)". Classes that do not fit are
// broken into a header unit and one unit per method before any line splitting.
//
// # Caching
//
// With WithCache, results are memoized by (path, content hash, ceiling).
// Results are deterministic for a given input, which is what makes the cache
// key sound.
package chunker
