// Package hook implements the assistant's PreToolUse/PostToolUse protocol.
//
// The assistant runs the hook before and after every tool call, passing a
// JSON payload on stdin. Only Write and Edit calls on code files matter:
//
//   - PreToolUse: related memories are rendered and the first attempt of a
//     write is denied with the injection as the reason. The assistant reads
//     it and retries; the retry of the same (path, content) attempt is found
//     in the seen-writes file and allowed silently.
//   - PostToolUse: the written code (and, for Edit, the replaced code) is
//     embedded and stored with the session id.
//
// A hook must never block the assistant. Handle returns errors for logging,
// and the command always exits 0 without output when one occurs.
package hook
