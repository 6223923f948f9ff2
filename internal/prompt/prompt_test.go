package prompt

import (
	"strings"
	"testing"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"simplify", ModeSimplify, false},
		{"SUMMARIZE", ModeSummarize, false},
		{"  Summarize ", ModeSummarize, false},
		{"", ModeSimplify, false},
		{"translate", Mode("translate"), true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			assert.Equal(t, tt.want, got)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, apperr.KindUnsupportedMode))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestDefaultCatalog(t *testing.T) {
	catalog, err := DefaultCatalog()
	require.NoError(t, err)

	simplify, err := catalog.InstructionsFor(ModeSimplify)
	require.NoError(t, err)
	assert.Contains(t, simplify.SystemPrompt, "accessibility assistant")
	assert.InDelta(t, 0.25, simplify.Temperature, 1e-9)
	assert.Equal(t, 400, simplify.MaxOutputTokens)
	assert.False(t, simplify.Reduces())

	summarize, err := catalog.InstructionsFor(ModeSummarize)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, summarize.Temperature, 1e-9)
	assert.Equal(t, 300, summarize.MaxOutputTokens)
	assert.True(t, summarize.Reduces())
}

func TestInstructionsForUnsupportedMode(t *testing.T) {
	catalog := MustDefaultCatalog()

	inst, err := catalog.InstructionsFor(Mode("poem"))
	assert.Nil(t, inst)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnsupportedMode, apperr.KindOf(err))
}

func TestRenderedContent(t *testing.T) {
	catalog := MustDefaultCatalog()
	summarize, err := catalog.InstructionsFor(ModeSummarize)
	require.NoError(t, err)

	assert.Equal(t, "Summarize the following text into bullet points:\n\nA short sentence.",
		summarize.UserContent("A short sentence."))
	assert.True(t, strings.HasPrefix(summarize.ChunkContent("part"), "Summarize the following section"))

	reduction := summarize.ReductionContent("- a\n\n- b", 2)
	assert.Contains(t, reduction, "from 2 different sections")
	assert.Contains(t, reduction, "- a\n\n- b")
	assert.Contains(t, reduction, "3–7 bullets")
}

func TestLoadCatalogValidation(t *testing.T) {
	_, err := LoadCatalog([]byte("modes: ["))
	assert.Error(t, err)

	_, err = LoadCatalog([]byte(`
modes:
  simplify:
    system_prompt: s
    user_prompt: "{{text}}"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summarize")

	c, err := LoadCatalog([]byte(`
modes:
  Simplify:
    system_prompt: s
    user_prompt: "u {{text}}"
  summarize:
    system_prompt: s
    user_prompt: "v {{text}}"
`))
	require.NoError(t, err)
	inst, err := c.InstructionsFor(ModeSimplify)
	require.NoError(t, err)
	assert.Equal(t, "u x", inst.ChunkContent("x"), "chunk prompt falls back to user prompt")
}
