// Package engine is the composition root of afterimage.
//
// New turns a config.Config into a ready pipeline: SQLite knowledge base,
// embedding provider, hybrid searcher, chunk cache, chunker, scorer,
// summarizer and injector, all sharing one token estimator and logger.
// The hook, the MCP server and the CLI each build one Engine and call its
// three operations:
//
//	BuildContext  search related memories and render the injection
//	Remember      embed and store one code change
//	Ingest        seed the knowledge base from a directory
package engine
