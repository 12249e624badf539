package config

import (
	_ "embed"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

// GetDefaultConfigContent returns the content of the built-in defaults
func GetDefaultConfigContent() string {
	return string(defaultConfig)
}
