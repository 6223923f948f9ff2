package prompt

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/readaloud-api/pkg/embedded"
	"gopkg.in/yaml.v3"
)

type modeFile struct {
	Modes map[string]modeEntry `yaml:"modes"`
}

type modeEntry struct {
	Temperature     float64 `yaml:"temperature"`
	MaxOutputTokens int     `yaml:"max_output_tokens"`
	SystemPrompt    string  `yaml:"system_prompt"`
	UserPrompt      string  `yaml:"user_prompt"`
	ChunkPrompt     string  `yaml:"chunk_prompt"`
	ReductionPrompt string  `yaml:"reduction_prompt"`
}

// Catalog is an immutable lookup from Mode to Instructions.
type Catalog struct {
	modes map[Mode]Instructions
}

// DefaultCatalog loads the instruction templates embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(embedded.ModesYAML)
}

// MustDefaultCatalog is DefaultCatalog for program initialization.
func MustDefaultCatalog() *Catalog {
	c, err := DefaultCatalog()
	if err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog parses a YAML mode file. Every recognized mode must be present.
func LoadCatalog(data []byte) (*Catalog, error) {
	var f modeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse mode catalog: %w", err)
	}

	c := &Catalog{modes: make(map[Mode]Instructions, len(f.Modes))}
	for name, e := range f.Modes {
		m := Mode(strings.ToLower(name))
		if e.SystemPrompt == "" || e.UserPrompt == "" {
			return nil, fmt.Errorf("mode %q: system_prompt and user_prompt are required", name)
		}
		chunkPrompt := e.ChunkPrompt
		if chunkPrompt == "" {
			chunkPrompt = e.UserPrompt
		}
		c.modes[m] = Instructions{
			Mode:            m,
			SystemPrompt:    strings.TrimSpace(e.SystemPrompt),
			UserPrompt:      e.UserPrompt,
			ChunkPrompt:     chunkPrompt,
			ReductionPrompt: e.ReductionPrompt,
			Temperature:     e.Temperature,
			MaxOutputTokens: e.MaxOutputTokens,
		}
	}

	for _, m := range Modes() {
		if _, ok := c.modes[m]; !ok {
			return nil, fmt.Errorf("mode catalog is missing %q", m)
		}
	}
	return c, nil
}

// InstructionsFor returns the templates for mode, or an UNSUPPORTED_MODE error.
func (c *Catalog) InstructionsFor(mode Mode) (*Instructions, error) {
	inst, ok := c.modes[mode]
	if !ok {
		return nil, unsupported(mode)
	}
	return &inst, nil
}
