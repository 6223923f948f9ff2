package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/Conceptual-Machines/readaloud-api/internal/speech"
	"github.com/spf13/cobra"
)

const audioFileMode = 0o644

var (
	speakLanguage    string
	speakVoice       string
	speakFormat      string
	speakTranslateTo string
	speakOutput      string
)

var speakCmd = &cobra.Command{
	Use:   "speak [file]",
	Short: "Synthesize speech for text and write the audio to a file",
	Long: `Send text to the configured speech backend (the signed Azure Function when
AZURE_FUNCTION_URL is set, otherwise Azure Speech directly), optionally
translating it first, and write the decoded audio to --out.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSpeak,
}

func init() {
	speakCmd.Flags().StringVarP(&speakLanguage, "language", "l", "", "Language of the text (default DEFAULT_LANGUAGE)")
	speakCmd.Flags().StringVar(&speakVoice, "voice", "", "Neural voice name (default: mapped from the language)")
	speakCmd.Flags().StringVarP(&speakFormat, "format", "f", speech.FormatMP3, "Audio format: audio/mp3 or audio/wav")
	speakCmd.Flags().StringVarP(&speakTranslateTo, "translate-to", "t", "", "Translate to this language before speaking")
	speakCmd.Flags().StringVarP(&speakOutput, "out", "o", "speech.mp3", "Output audio file")
}

// newSynthesizer selects the speech backend; swapped in tests
var newSynthesizer = func(cfg *config.Config) speech.Synthesizer {
	return speech.New(cfg, nil)
}

func runSpeak(cmd *cobra.Command, args []string) error {
	text, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	cfg := loadConfig()
	if text == "" {
		return fmt.Errorf("no text to speak")
	}
	if len([]rune(text)) > cfg.MaxTTSTextLength {
		return fmt.Errorf("text is %d chars, max %d", len([]rune(text)), cfg.MaxTTSTextLength)
	}

	language := speakLanguage
	if !speech.IsValidLanguage(language) {
		language = cfg.DefaultLanguage
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	synth := newSynthesizer(cfg)
	result, err := synth.Synthesize(ctx, &speech.Request{
		RequestID:   "local-speak",
		Text:        text,
		Language:    language,
		Voice:       speakVoice,
		Format:      speech.NormalizeFormat(speakFormat),
		TranslateTo: speakTranslateTo,
	})
	if err != nil {
		return fmt.Errorf("%s synthesis failed: %w", synth.Name(), err)
	}

	audio, err := base64.StdEncoding.DecodeString(result.AudioBase64)
	if err != nil {
		return fmt.Errorf("backend returned invalid base64 audio: %w", err)
	}
	if err := os.WriteFile(speakOutput, audio, audioFileMode); err != nil {
		return fmt.Errorf("failed to write audio: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes of %s to %s (voice %s, language %s, %dms)\n",
		len(audio), result.AudioContentType, speakOutput, result.Voice, result.Language, result.LatencyMs)
	return nil
}
