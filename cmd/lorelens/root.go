package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MrWong99/lorelens/internal/config"
)

const defaultConfigPath = "lorelens.yaml"

// newRootCmd builds the command tree. Flags are bound to a fresh viper
// instance so tests can build independent trees.
func newRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("LORELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:   "lorelens",
		Short: "Speaker-aware OCR dialogue pipeline for game translation",
		Long: `lorelens turns OCR captures of game dialogue boxes into classified lines
with resolved speakers, and memoizes their translations.

Every flag can also be set through the environment with the LORELENS_
prefix, e.g. LORELENS_CONFIG or LORELENS_LOG_LEVEL.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().String("config", defaultConfigPath, "path to the YAML configuration file")
	root.PersistentFlags().String("log-level", "", "override server.log_level (debug, info, warn, error)")
	root.PersistentFlags().String("characters", "", "override characters.path")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = v.BindPFlag("characters", root.PersistentFlags().Lookup("characters"))

	root.AddCommand(
		newServeCmd(v),
		newClassifyCmd(v),
		newLearnedCmd(v),
	)
	return root
}

// loadConfig reads the configured file and applies flag and environment
// overrides. A missing default config file yields the built-in defaults;
// a missing file named explicitly is an error.
//
// The returned path is empty when no file was read.
func loadConfig(v *viper.Viper) (*config.Config, string, error) {
	path := v.GetString("config")
	cfg, err := config.Load(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigPath:
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
		path = ""
	default:
		return nil, "", err
	}

	if lvl := v.GetString("log-level"); lvl != "" {
		cfg.Server.LogLevel = config.LogLevel(lvl)
	}
	if p := v.GetString("characters"); p != "" {
		cfg.Characters.Path = p
	}
	if err := config.Validate(cfg); err != nil {
		return nil, "", fmt.Errorf("config: %w", err)
	}
	return cfg, path, nil
}
