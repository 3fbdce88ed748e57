// Package chain houses blockchain connectivity utilities: the client
// interface consumed by the funding and proposal layers, YAML chain endpoint
// definitions, and receipt-wait helpers. Concrete EVM connectivity lives in
// the ethereum subpackage; the provider subpackage assembles configured
// clients into a registry.
package chain
