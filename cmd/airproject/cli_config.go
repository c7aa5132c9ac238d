package main

import (
	"path/filepath"

	"github.com/joho/godotenv"
	configpkg "github.com/minhyannv/airproject/pkg/config"
	"github.com/minhyannv/airproject/pkg/project"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// addPersistentFlags declares the flags shared by every command.
func addPersistentFlags(cmd *cobra.Command) {
	defaults := configpkg.DefaultConfig()
	flags := cmd.PersistentFlags()
	flags.String(configpkg.KeyDir, defaults.Dir, "Project directory")
	flags.String(configpkg.KeyProvider, defaults.Provider, "Model provider: openai or anthropic")
	flags.String(configpkg.KeyModel, "", "Model name (default depends on the provider)")
	flags.String(configpkg.KeyBaseURL, "", "Override the provider API base URL")
	flags.String(configpkg.KeyFormat, defaults.Format, "Conversation format: text or json")
	flags.Int(configpkg.KeyMaxTurns, defaults.MaxTurns, "Max model turns per submission")
	flags.Int(configpkg.KeyMaxTokens, defaults.MaxTokens, "Max tokens per model response")
	flags.Int(configpkg.KeyMaxRetries, defaults.MaxRetries, "Retries for transient provider errors")
	flags.Bool(configpkg.KeyVerbose, defaults.Verbose, "Verbose logging to stderr")
}

// loadCLIConfig resolves the configuration for cmd. Unless the command can
// run outside a project, the project marker must exist and its settings are
// layered under flags and environment.
func loadCLIConfig(cmd *cobra.Command, needsProject bool) (configpkg.Config, *project.Project, error) {
	v := configpkg.NewViper()
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return configpkg.Config{}, nil, errors.Wrap(err, "bind flags")
	}

	cfg, err := configpkg.Load(v, nil)
	if err != nil {
		return configpkg.Config{}, nil, err
	}
	loadDotEnv(cfg.Dir)
	if !needsProject {
		cfg, err = configpkg.Load(v, nil)
		return cfg, nil, err
	}

	proj, err := project.Load(cfg.Dir)
	if err != nil {
		return configpkg.Config{}, nil, err
	}
	cfg, err = configpkg.Load(v, proj.Settings)
	if err != nil {
		return configpkg.Config{}, nil, err
	}
	return cfg, proj, nil
}

// loadDotEnv loads .env from the working directory and the project
// directory. Variables already set win.
func loadDotEnv(dir string) {
	_ = godotenv.Load()
	if dir != "" && dir != "." {
		_ = godotenv.Load(filepath.Join(dir, ".env"))
	}
}
