// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads converse's configuration file.
//
// The file is YAML; a path ending in .json or .jsonc is read as JSON
// with comments and trailing commas. [ResolvePath] picks the file: the
// --config flag, then CONVERSE_CONFIG, then
// $XDG_CONFIG_HOME/converse/config.yaml (~/.config when unset).
//
// Credentials belong in the environment, not the file. String fields
// that carry credentials, URLs, models, or paths expand ${VAR} and
// ${VAR:-default} from the environment after parsing. A reference to
// an unset variable expands to the empty string; the provider's own
// validation then reports the missing credential by name.
//
// [Config.Validate] checks structure only (unique provider names, a
// known context strategy, sane ratios). Whether a provider is usable
// is decided when the provider registry is built.
package config
