// Package types provides shared type definitions for the AfterImage context engine.
//
// # Core Types
//
// Candidate is a code memory returned by the knowledge-base search. It carries
// the code written (NewCode), the code replaced by an edit (OldCode), the
// conversation context and an optional embedding:
//
//	c := types.Candidate{
//	    ID:        "6f1c...",
//	    FilePath:  "/src/app/handlers.py",
//	    NewCode:   "def handle(req): ...",
//	    Timestamp: time.Now(),
//	}
//
// SourceUnit is a semantic slice of a file (function, method, class, imports,
// constants or a plain block) produced by the chunker.
//
// ScoredSnippet and SnippetGroup are the ranked and clustered forms of
// candidates, and InjectionResult is the final rendered block.
//
// # Validation
//
// Types implement Validate methods; errors are the sentinels in errors.go and
// can be matched with errors.Is.
package types
