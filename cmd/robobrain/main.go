// Package main is the entry point for the robobrain CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/flemzord/robobrain/internal/config"
	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/security"
	"github.com/flemzord/robobrain/pkg/app"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "robobrain",
		Short:         "Conversational brain for a campus guide robot",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			return loadEnv(envFile)
		},
	}
	root.PersistentFlags().String("env-file", "", "Load environment variables from this file (default ./.env when present)")
	root.AddCommand(versionCmd(), startCmd(), configCmd(), initCmd(), serviceCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "robobrain %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Fprintln(out, "\nNo compiled modules.")
				return
			}
			fmt.Fprintln(out, "\nCompiled modules:")
			for _, mod := range mods {
				fmt.Fprintf(out, "  %s\n", mod.ID)
			}
		},
	}
}

func runParams(cmd *cobra.Command) (app.RunParams, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	levelName, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return app.RunParams{}, fmt.Errorf("invalid --log-level %q: %w", levelName, err)
	}
	return app.RunParams{
		ConfigPath: cfgPath,
		Version:    version,
		Commit:     commit,
		Date:       date,
		DataDir:    dataDir,
		LogLevel:   level,
	}, nil
}

func addRunFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to configuration file")
	fs.String("data-dir", "", "Persistent data directory (default $XDG_DATA_HOME/robobrain)")
	fs.String("log-level", "info", "Minimum log level: debug, info, warn or error")
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start robobrain with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := runParams(cmd)
			if err != nil {
				return err
			}
			return app.Run(params)
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	check := &cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			show, _ := cmd.Flags().GetBool("show")
			return checkConfig(cmd.OutOrStdout(), args[0], show)
		},
	}
	check.Flags().Bool("show", false, "Print the resolved configuration with secrets masked")
	cmd.AddCommand(check)
	return cmd
}

// checkConfig loads and validates path, then provisions every module so
// module-level validation runs too. Nothing is started.
func checkConfig(out io.Writer, path string, show bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	appCtx := core.NewAppContext(logger, os.TempDir()).WithModuleConfigs(cfg.Modules)
	application := core.NewApp(appCtx)
	ids := config.Resolve(cfg)
	if err := application.LoadModules(ids); err != nil {
		return err
	}
	application.Stop()

	fmt.Fprintf(out, "Configuration OK (%d modules)\n", len(ids))
	for _, id := range ids {
		fmt.Fprintf(out, "  %s\n", id)
	}
	if show {
		return printRedacted(out, cfg)
	}
	return nil
}

// printRedacted dumps cfg as YAML with every secret value masked.
func printRedacted(out io.Writer, cfg *config.Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return err
	}

	redactor := security.NewRedactor()
	redactor.AddLiteral(config.Secrets(cfg)...)
	redactor.RedactMap(tree)

	masked, err := yaml.Marshal(tree)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s", masked)
	return nil
}
