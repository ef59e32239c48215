// Package config loads, normalizes, and validates winescan's TOML
// configuration.
//
// Load searches ~/.config/winescan/config.toml and then ./winescan.toml,
// overlays the file on Default(), expands ~ in paths, and fills secrets from
// the environment (WINESCAN_LLM_API_KEY, provider specific keys,
// WINESCAN_VISION_API_KEY, WINESCAN_API_TOKEN, WINESCAN_REDIS_ADDR). The
// embedded sample_config.toml documents every key and backs `winescan config
// init`.
package config
