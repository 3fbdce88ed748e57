// Package llm contains adapters for invoking large language models. It
// abstracts away provider-specific APIs so the agent core can treat every
// provider as an interchangeable free-text source.
package llm
