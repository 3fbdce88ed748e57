// Package api exposes the REST surface of the governance agent: a chat
// endpoint that drives the proposal pipeline, read access to the proposal
// ledger, a health probe with chain metadata, and Prometheus metrics.
package api
