package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/cutforge/internal/config"
	"github.com/keagan/cutforge/internal/ffmpeg"
	"github.com/keagan/cutforge/internal/logging"
)

var (
	cfgFile  string
	verbose  bool
	jsonLogs bool
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cutforge",
	Short: "cutforge - video editing job worker",
	Long:  "Renders timelines, removes silence, plans smart edits and analyzes footage, either locally or as a queue worker.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(verbose, jsonLogs)

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cutforge.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "write logs as JSON")

	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(enqueueCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(silenceCmd)
	rootCmd.AddCommand(jumpcutCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(beatsCmd)
	rootCmd.AddCommand(highlightsCmd)
	rootCmd.AddCommand(montageCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "cutforge.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}

// newExecutor builds the ffmpeg executor from configuration.
func newExecutor(cfg *config.Config) (*ffmpeg.Executor, error) {
	return ffmpeg.New(log.Logger, cfg.FFmpeg.Threads)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
