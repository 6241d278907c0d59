// Package config loads eventrouter configuration.
//
// # Sources
//
// Load merges, lowest precedence first:
//
//  1. Built-in defaults (Default)
//  2. A configuration file, JSONC or YAML by extension
//  3. EVENTROUTER_* environment variables (ApplyEnv)
//
// LoadEnvFile can populate the environment from .env files beforehand, and
// Discover finds eventrouter.{jsonc,json,yaml,yml} in a directory or in the
// user configuration directory.
//
// # Formats
//
// JSON files may carry comments and trailing commas; they are cleaned with
// tidwall/jsonc before decoding. YAML files are decoded with gopkg.in/yaml.v3.
// In both formats scopes are written by name ("SCOPE_PRIVATE" or "private"),
// durations as Go duration strings ("1m") and wait strategies by name
// ("sleeping", "yielding", "blocking").
//
// File contents may reference the environment with {env:VAR} placeholders.
package config
