// Package config loads and validates the YAML settings shared by the
// umpire binaries: server address, data root, timeouts and worker tuning.
package config
