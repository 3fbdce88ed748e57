// Package config provides centralized configuration management for the
// agorad runtime. Configuration is loaded from a JSON file with sensible
// defaults applied for any section the operator leaves out; secrets such as
// API keys and the wallet passphrase are injected through environment
// variables rather than the file itself.
package config
