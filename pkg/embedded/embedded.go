package embedded

import (
	_ "embed"
)

// Embed prompt data files
//
//go:embed data/prompts/modes.yaml
var ModesYAML []byte
