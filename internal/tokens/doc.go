// Package tokens estimates token counts for budget enforcement and chunk sizing.
//
// The default Heuristic estimator divides byte length by four, the same rule
// the chunker has always used. A Tiktoken estimator gives exact BPE counts for
// a chosen encoding:
//
//	est, err := tokens.NewWithFallback("tiktoken", "cl100k_base")
//	if err != nil {
//	    logger.Warn("token estimator fallback", "err", err)
//	}
//	n := est.Estimate(snippet)
package tokens
