package cli

import _ "embed"

//go:embed default_config.yaml
var embeddedDefaultConfiguration []byte

// EmbeddedDefaultConfiguration returns the YAML configuration compiled into
// the binary. It is consulted before any on-disk configuration file.
func EmbeddedDefaultConfiguration() []byte {
	return embeddedDefaultConfiguration
}
