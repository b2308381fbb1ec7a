// Package injector orchestrates context injection for one Write or Edit.
//
// Candidates from the knowledge base are scored, clustered, located through
// the chunker and rendered as descriptor plus fenced code. The token budget
// is then allocated over the rendered entries. The result never exceeds the
// configured max tokens.
//
// Every stage runs behind a recover boundary. A failure is reported to the
// Diagnostics sink and degrades to the first few raw candidates, or to an
// empty result; Inject itself never returns an error.
//
//	inj, err := injector.New(cfg, sc, sum,
//	    injector.WithChunker(chunker.New(chunker.WithCache(cache))),
//	    injector.WithDiagnostics(logging.NewDiagnosticsSink(logger)))
//	res := inj.Inject(ctx, injector.Request{
//	    Candidates: hits,
//	    FilePath:   "/src/app/handlers.go",
//	    ToolType:   injector.ToolWrite,
//	})
package injector
