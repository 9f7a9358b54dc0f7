package main

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"
	"github.com/flemzord/robobrain/internal/config"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Choices offered by the init wizard.
const (
	providerOllama = "ollama"
	providerOpenAI = "openai_compatible"
	providerNone   = "none"

	memoryInProcess = "in_process"
	memorySQLite    = "sqlite"
)

// initAnswers holds what the wizard collected.
type initAnswers struct {
	Bind string

	Provider string
	BaseURL  string
	Model    string

	// ClaudeFallback adds the Anthropic API behind the primary model.
	ClaudeFallback bool

	Memory string

	Bridge bool
	MCP    bool
}

func defaultAnswers() initAnswers {
	return initAnswers{
		Bind:     "127.0.0.1:8000",
		Provider: providerOllama,
		BaseURL:  "http://localhost:11434",
		Model:    "llama3.1",
		Memory:   memorySQLite,
		Bridge:   true,
		MCP:      false,
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactively write a starter configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			output, _ := cmd.Flags().GetString("output")
			force, _ := cmd.Flags().GetBool("force")
			accept, _ := cmd.Flags().GetBool("yes")

			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}

			answers := defaultAnswers()
			if !accept {
				if err := askInit(&answers); err != nil {
					if errors.Is(err, huh.ErrUserAborted) {
						fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
						return nil
					}
					return err
				}
			}

			raw, err := renderConfig(answers)
			if err != nil {
				return err
			}
			if dir := filepath.Dir(output); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			// Pairing tokens are secrets.
			if err := os.WriteFile(output, raw, 0o600); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", config.FileName, "Where to write the configuration")
	cmd.Flags().Bool("force", false, "Overwrite an existing file")
	cmd.Flags().BoolP("yes", "y", false, "Accept the defaults without prompting")
	return cmd
}

func askInit(a *initAnswers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Gateway listen address").
				Value(&a.Bind).
				Validate(validateBind),
			huh.NewSelect[string]().
				Title("Language model").
				Options(
					huh.NewOption("Ollama (local)", providerOllama),
					huh.NewOption("OpenAI-compatible API", providerOpenAI),
					huh.NewOption("None (degraded replies only)", providerNone),
				).
				Value(&a.Provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model endpoint").
				Value(&a.BaseURL).
				Validate(validateURL),
			huh.NewInput().
				Title("Model name").
				Value(&a.Model).
				Validate(required("model name")),
			huh.NewConfirm().
				Title("Fall back to Claude when the model is down?").
				Description("Reads the key from ANTHROPIC_API_KEY.").
				Value(&a.ClaudeFallback),
		).WithHideFunc(func() bool { return a.Provider == providerNone }),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Long-term memory").
				Options(
					huh.NewOption("SQLite file", memorySQLite),
					huh.NewOption("In-process (lost on restart)", memoryInProcess),
				).
				Value(&a.Memory),
			huh.NewConfirm().
				Title("Accept robots over the WebSocket bridge?").
				Value(&a.Bridge),
			huh.NewConfirm().
				Title("Expose memory and sessions over MCP?").
				Value(&a.MCP),
		),
	)
	return form.Run()
}

func validateBind(s string) error {
	if _, err := net.ResolveTCPAddr("tcp", s); err != nil {
		return errors.New("expected host:port")
	}
	return nil
}

func validateURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("expected an http(s) URL")
	}
	return nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// renderConfig turns the answers into a robobrain.yaml document.
func renderConfig(a initAnswers) ([]byte, error) {
	modules := map[string]any{
		"gateway.http": map[string]any{"bind": a.Bind},
	}

	switch a.Provider {
	case providerOllama:
		modules["provider.ollama"] = map[string]any{
			"base_url": a.BaseURL,
			"model":    a.Model,
		}
	case providerOpenAI:
		modules["provider.openai_compatible"] = map[string]any{
			"base_url":    a.BaseURL,
			"model":       a.Model,
			"api_key_env": "OPENAI_API_KEY",
		}
	case providerNone:
	default:
		return nil, fmt.Errorf("unknown provider %q", a.Provider)
	}

	if a.ClaudeFallback && a.Provider != providerNone {
		modules["provider.anthropic"] = map[string]any{
			"role":        "fallback",
			"api_key_env": "ANTHROPIC_API_KEY",
		}
	}

	switch a.Memory {
	case memorySQLite:
		// Stored under the data directory.
		modules["memory.sqlite"] = map[string]any{}
	case memoryInProcess:
	default:
		return nil, fmt.Errorf("unknown memory backend %q", a.Memory)
	}

	if a.Bridge {
		modules["bridge.websocket"] = map[string]any{
			"pairing_tokens": []string{uuid.NewString()},
		}
	}
	if a.MCP {
		modules["mcp.server"] = map[string]any{}
	}

	doc := map[string]any{
		"version": config.CurrentVersion,
		"modules": modules,
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("rendering config: %w", err)
	}
	return append([]byte("# Generated by robobrain init.\n"), raw...), nil
}
