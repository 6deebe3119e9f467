// Package config loads, validates, and normalizes funnel configuration.
//
// Configuration is TOML, resolved from an explicit --config flag, then
// ~/.config/funnel/config.toml, then ./funnel.toml. Defaults cover every key,
// so funnel runs without a config file. Path fields are tilde-expanded and
// made absolute during normalization.
package config
