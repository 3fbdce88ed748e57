// Package protocol implements the tagged-field response contract spoken by
// the conversational agent. Agent output is expected to follow a fixed
// ordered sequence of bracket-delimited tags; this package deterministically
// recovers a structured intent from that text and degrades to an empty
// intent when no tags are present.
package protocol
