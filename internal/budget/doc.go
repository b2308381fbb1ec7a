// Package budget enforces the token ceiling of an injection.
//
// Five named tiers map to fixed ceilings (minimal 500 through maximum 8000).
// Allocate is greedy over score order and never reports more tokens than the
// ceiling it was given: when even the first item is too large, its text is
// truncated on a line boundary and the allocation is marked truncated.
package budget
