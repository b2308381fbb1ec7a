// Package filter decides which files count as source code.
//
// Skip paths are doublestar globs matched against slash-separated paths
// ("**/node_modules/**"). Extensions are checked against a skip list and a
// code whitelist; anything else is judged by a keyword-density heuristic
// over the file content.
package filter
