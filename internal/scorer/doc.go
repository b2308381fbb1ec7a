// Package scorer ranks knowledge-base candidates for injection.
//
// Each candidate gets four factors in [0,1]:
//
//   - recency: exponential decay with a configurable half-life
//   - proximity: same file, same directory, same project or unrelated
//   - semantic: cosine similarity to the current context embedding
//   - project: membership in (or shared path depth with) the project root
//
// The composite is their weighted sum. Weights must sum to 1; when a
// candidate has no usable embedding the semantic weight is redistributed
// over the other three and a warning is recorded instead of failing.
package scorer
