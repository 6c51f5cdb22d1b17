// Package notifications publishes upload outcomes to ntfy.
//
// When no topic is configured the service is a no-op. The placed and
// rejected toggles in config.toml silence either event class independently.
package notifications
