// Package cli implements readaloudctl, a local driver for the rewrite and
// speech pipelines that runs them without the HTTP relay in front.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Conceptual-Machines/readaloud-api/internal/config"
	"github.com/Conceptual-Machines/readaloud-api/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version string
	envFile string
	verbose bool

	rootCmd = &cobra.Command{
		Use:   "readaloudctl",
		Short: "Run the read-aloud rewrite and speech pipelines locally",
		Long: `readaloudctl drives the same chunking, rewrite and speech code as the
relay, reading text from a file or stdin.

Backends are configured with the relay's environment variables; an .env
file is loaded first when present.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func SetVersion(v string) {
	version = v
}

func Execute() error {
	return rootCmd.Execute()
}

// GetRootCmd returns the root command
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Environment file to load before reading configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Write structured logs to stderr")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(chunkCmd)
	rootCmd.AddCommand(rewriteCmd)
	rootCmd.AddCommand(speakCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "readaloudctl version %s\n", version)
	},
}

func setup(_ *cobra.Command, _ []string) error {
	if envFile != "" {
		// a missing file is fine; the environment may already be set
		_ = godotenv.Load(envFile)
	}
	if verbose {
		return logger.Init("development")
	}
	return nil
}

// loadConfig is swapped in tests
var loadConfig = config.Load

// readInput returns the text from the file named in args, or stdin when no
// file (or "-") is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) > 0 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
