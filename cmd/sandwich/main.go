// Command sandwich forages text for structural triples and curates them into
// a corpus.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n", r)
			os.Exit(2)
		}
	}()

	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var g globalFlags

	cmd := &cobra.Command{
		Use:   "sandwich",
		Short: "Forage text for bound/bounded triples",
		Long: `sandwich reads text from configured sources, proposes triples of two
bounding ingredients and one bounded ingredient, scores them and keeps the
accepted ones in a corpus. Runs stop once patience is spent.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "Path to YAML config file (default ./sandwich.yaml or ~/.config/sandwich/config.yaml)")
	cmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "Override the configured log level")

	cmd.AddCommand(
		forageCmd(&g),
		serveCmd(&g),
		browseCmd(&g),
		seedCmd(&g),
		statsCmd(&g),
	)
	return cmd
}
