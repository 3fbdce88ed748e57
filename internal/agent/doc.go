// Package agent contains the core orchestrator that turns member messages
// into on-chain governance proposals. It routes each message through a cached
// model session, extracts the tagged payment intent from the reply, and when
// the model decides to execute, tops up the signing identity and submits the
// proposal transaction before answering the member.
package agent
