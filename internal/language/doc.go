// Package language maps file paths and content to language tags.
//
// The tag selects the chunking strategy and the fence tag used when code is
// rendered into an injection.
package language
