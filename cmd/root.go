// Package cmd provides the command-line interface for assetpipe.
//
// Configuration sources, highest priority first:
//  1. Command-line flags (--config, --minify, ...)
//  2. ASSETPIPE_CONFIG_FILE environment variable (custom config file path)
//  3. Individual environment variables (ASSETPIPE_MINIFY, ...)
//  4. .assetpipe.yml in the current directory
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/descriptors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetpipe",
	Short: "An in-memory asset build pipeline",
	Long: `Assetpipe resolves import and reference relationships between source
files, applies per-type transformations (parse, substitute, compile,
finalize, minify), and produces versioned, content-addressed output —
without writing intermediate files, re-running only what changed.

Quick Start:
  assetpipe init                  Write a default .assetpipe.yml
  assetpipe process               Run one scan-and-process cycle
  assetpipe list                  List the manifest with fingerprints
  assetpipe dump ./public         Write entry-point assets to disk`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is .assetpipe.yml, can also use ASSETPIPE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig initializes viper with the configured sources.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ASSETPIPE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetpipe")
	}

	viper.SetEnvPrefix("ASSETPIPE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Missing or malformed config files degrade to defaults without failing.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// newPipeline builds a pipeline from the loaded configuration with the
// bundled descriptors.
func newPipeline() (*pipeline.Pipeline, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
		Output: os.Stderr,
	})

	p, err := pipeline.New(pipeline.Options{
		Roots:              cfg.Roots,
		Hosts:              cfg.Hosts,
		Prefix:             cfg.Prefix,
		Pristine:           cfg.Pristine,
		Entries:            cfg.Entries,
		Minify:             cfg.Minify,
		MinifiedPatterns:   cfg.MinifiedPatterns,
		MinProcessInterval: cfg.MinProcessInterval,
		Descriptors:        descriptors.All(),
		Logger:             logger,
	})
	if err != nil {
		return nil, nil, err
	}

	return p, logger, nil
}
