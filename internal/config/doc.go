// Package config loads, normalizes, and validates coursedrop configuration.
//
// Settings come from a TOML file (defaults at ~/.config/coursedrop/config.toml
// or ./coursedrop.toml) layered over Default(), with environment fallbacks for
// secrets. Relative paths resolve against the working directory so a bare
// install keeps its staging area and CW/SW trees next to where it runs.
//
// EnsureDirectories owns the on-disk layout: staging, logs, and one directory
// per (category root, year) pair. Callers create it once at startup.
package config
