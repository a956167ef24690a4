// Package config loads, normalizes, and validates the TOML
// configuration for the triage console.
//
// Load resolves the config path (explicit flag, then
// ~/.config/triage/config.toml, then ./triage.toml), applies defaults
// for missing keys, expands ~ in path fields, and rejects
// configurations that normalization cannot repair, such as a missing
// reviewer id or staleness intervals shorter than the refresh tick.
package config
