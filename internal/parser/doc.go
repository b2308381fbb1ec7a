// Package parser extracts declarations from source code for chunking.
//
// Three extraction paths exist, from most to least precise:
//
//   - Parser uses go/parser and go/ast for Go source.
//   - TreeSitter uses tree-sitter grammars for Python, JavaScript, TypeScript,
//     Rust, Java and Kotlin. It needs cgo; without it every language is
//     reported as unsupported.
//   - FindMarkers matches per-family signature patterns line by line and works
//     for any language.
//
// # Basic Usage
//
//	result, err := parser.New().ParseSource("server.go", src)
//	if err != nil || result.HasErrors() {
//	    markers := parser.FindMarkers(string(src), language.FamilyCLike)
//	    ...
//	}
//
// Symbols carry 1-based inclusive line ranges. A declaration's range starts
// at its doc comment or decorator so the chunk keeps them together.
package parser
