// Package config loads, normalizes and validates the AttentionGuard TOML
// configuration.
//
// Load resolves the config path (explicit flag, ~/.config/attentionguard,
// then ./attentionguard.toml), overlays the file on Default, expands paths
// and validates the result. CreateSample writes the embedded annotated
// sample for `attentionguard config init`.
package config
