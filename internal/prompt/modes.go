package prompt

import (
	"fmt"
	"strings"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
)

// Mode selects how page text is rewritten.
type Mode string

const (
	ModeSimplify  Mode = "simplify"
	ModeSummarize Mode = "summarize"
)

// DefaultMode is used when a request does not name one.
const DefaultMode = ModeSimplify

// Modes lists the recognized modes in a stable order.
func Modes() []Mode {
	return []Mode{ModeSimplify, ModeSummarize}
}

// ParseMode validates a caller-supplied mode name. Matching is case-insensitive
// and an empty name selects DefaultMode.
func ParseMode(s string) (Mode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	if name == "" {
		return DefaultMode, nil
	}
	for _, m := range Modes() {
		if Mode(name) == m {
			return m, nil
		}
	}
	return Mode(name), unsupported(Mode(name))
}

func unsupported(m Mode) *apperr.Error {
	return apperr.New(
		apperr.KindUnsupportedMode,
		fmt.Sprintf(`Invalid mode "%s". Expected "simplify" or "summarize".`, m),
	).WithDetails(map[string]any{"mode": string(m)})
}

// Instructions parameterize every backend call made for one mode.
type Instructions struct {
	Mode            Mode
	SystemPrompt    string
	UserPrompt      string
	ChunkPrompt     string
	ReductionPrompt string
	Temperature     float64
	MaxOutputTokens int
}

// Reduces reports whether multi-chunk output needs a final merge call.
// Without a reduction prompt the partial outputs are simply concatenated.
func (i *Instructions) Reduces() bool {
	return strings.TrimSpace(i.ReductionPrompt) != ""
}
