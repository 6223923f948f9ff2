package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Conceptual-Machines/readaloud-api/internal/apperr"
	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/Conceptual-Machines/readaloud-api/internal/generation"
	"github.com/Conceptual-Machines/readaloud-api/internal/llm"
	"github.com/Conceptual-Machines/readaloud-api/internal/prompt"
	"github.com/Conceptual-Machines/readaloud-api/internal/rewrite"
	"github.com/spf13/cobra"
)

var (
	rewriteMode      string
	rewriteRequestID string
	rewriteJSON      bool
)

var rewriteCmd = &cobra.Command{
	Use:   "rewrite [file]",
	Short: "Simplify or summarize text with the configured backend",
	Long: `Rewrite text exactly as POST /llm does: clamp, chunk, call the backend with
rate-limit backoff and, for summarize, merge the partial summaries.

On failure the error envelope and the fallback text are printed and the
command exits non-zero.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRewrite,
}

func init() {
	rewriteCmd.Flags().StringVarP(&rewriteMode, "mode", "m", string(prompt.DefaultMode), "Rewrite mode (simplify or summarize)")
	rewriteCmd.Flags().StringVar(&rewriteRequestID, "request-id", "", "Request ID used in logs (default local-<timestamp>)")
	rewriteCmd.Flags().BoolVar(&rewriteJSON, "json", false, "Print the relay's JSON response")
}

// rewriter is what the rewrite command needs from the pipeline
type rewriter interface {
	Run(ctx context.Context, text string, mode prompt.Mode, requestID string) *rewrite.Result
}

// newRewriter builds the pipeline from configuration; swapped in tests
var newRewriter = func(ctx context.Context, cfg *config.Config) (rewriter, string, error) {
	provider, err := llm.NewProviderFactory(cfg).GetProvider(ctx)
	if err != nil {
		return nil, "", err
	}
	catalog, err := prompt.DefaultCatalog()
	if err != nil {
		return nil, "", err
	}
	caller := generation.NewCaller(provider)
	return rewrite.NewOrchestrator(caller, catalog, cfg.LLMChunkChars), llm.SourceOf(provider), nil
}

// RewriteJSON mirrors the POST /llm response body
type RewriteJSON struct {
	Success      bool             `json:"success"`
	RequestID    string           `json:"requestId"`
	Mode         string           `json:"mode"`
	OutputText   string           `json:"outputText,omitempty"`
	Source       string           `json:"source,omitempty"`
	Error        *apperr.Envelope `json:"error,omitempty"`
	FallbackText string           `json:"fallbackText,omitempty"`
}

func runRewrite(cmd *cobra.Command, args []string) error {
	mode, err := prompt.ParseMode(rewriteMode)
	if err != nil {
		return err
	}
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}

	cfg := loadConfig()
	text, truncated := rewrite.Clamp(text, cfg.LLMMaxTextLength)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rw, source, err := newRewriter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize backend: %w", err)
	}

	requestID := rewriteRequestID
	if requestID == "" {
		requestID = fmt.Sprintf("local-%d", time.Now().Unix())
	}

	result := rw.Run(ctx, text, mode, requestID)
	resp := RewriteJSON{Success: result.Success(), RequestID: requestID, Mode: string(mode)}
	if result.Success() {
		resp.OutputText = result.OutputText
		resp.Source = source
	} else {
		env := apperr.Normalize(apperr.OriginOrchestrator, result.Err)
		resp.Error = &env
		resp.FallbackText = result.FallbackText
	}

	out := cmd.OutOrStdout()
	if rewriteJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(resp); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "mode: %s  chunks: %d  calls: %d  duration: %s", mode, result.Chunks, result.Calls,
			result.Duration.Round(time.Millisecond))
		if truncated {
			fmt.Fprint(out, "  (input truncated)")
		}
		fmt.Fprintln(out)
		if result.Success() {
			fmt.Fprintf(out, "\n%s\n", result.OutputText)
		} else {
			fmt.Fprintf(out, "\nerror: %s: %s\n\n=== FALLBACK TEXT ===\n%s\n", resp.Error.Code, resp.Error.Message, result.FallbackText)
		}
	}

	if !result.Success() {
		return result.Err
	}
	return nil
}
