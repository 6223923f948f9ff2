package cli

import (
	"encoding/json"
	"fmt"

	"github.com/Conceptual-Machines/readaloud-api/internal/chunker"
	"github.com/spf13/cobra"
)

var (
	chunkMaxChars int
	chunkJSON     bool
)

var chunkCmd = &cobra.Command{
	Use:   "chunk [file]",
	Short: "Show how text would be split before rewriting",
	Long: `Split text into the paragraph-aligned chunks the rewrite pipeline sends
to the model, one call per chunk.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChunk,
}

func init() {
	chunkCmd.Flags().IntVar(&chunkMaxChars, "max-chars", 0, "Chunk budget in characters (default LLM_CHUNK_CHARS)")
	chunkCmd.Flags().BoolVar(&chunkJSON, "json", false, "Print chunks as JSON")
}

// ChunkJSON is the --json output of the chunk command
type ChunkJSON struct {
	Index     int    `json:"index"`
	SizeChars int    `json:"size_chars"`
	Content   string `json:"content"`
}

func runChunk(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	maxChars := chunkMaxChars
	if maxChars <= 0 {
		maxChars = loadConfig().LLMChunkChars
	}
	chunks := chunker.Chunk(text, maxChars)

	out := cmd.OutOrStdout()
	if chunkJSON {
		items := make([]ChunkJSON, len(chunks))
		for i, c := range chunks {
			items[i] = ChunkJSON{Index: c.Index, SizeChars: c.SizeChars, Content: c.Content}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(items)
	}

	if len(chunks) == 0 {
		fmt.Fprintln(out, "No chunks: text is empty.")
		return nil
	}
	fmt.Fprintf(out, "%d chunk(s), budget %d chars\n", len(chunks), maxChars)
	for _, c := range chunks {
		fmt.Fprintf(out, "\n--- chunk %d (%d chars) ---\n%s\n", c.Index, c.SizeChars, c.Content)
	}
	return nil
}
