// Package ollama provides a language model provider speaking Ollama's
// native /api/chat protocol, the usual way Typhoon runs on the robot PC.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/flemzord/robobrain/internal/core"
	"github.com/flemzord/robobrain/internal/provider"
	"gopkg.in/yaml.v3"
)

func init() {
	core.RegisterModule(&Provider{})
}

// Compile-time interface assertions.
var (
	_ core.Configurable      = (*Provider)(nil)
	_ core.Provisioner       = (*Provider)(nil)
	_ core.Validator         = (*Provider)(nil)
	_ core.Starter           = (*Provider)(nil)
	_ provider.Provider      = (*Provider)(nil)
	_ provider.HealthChecker = (*Provider)(nil)
)

// Provider talks to an Ollama server.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	Stream    bool          `json:"stream"`
	KeepAlive string        `json:"keep_alive,omitempty"`
	Options   chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message         chatMessage `json:"message"`
	DoneReason      string      `json:"done_reason"`
	PromptEvalCount int         `json:"prompt_eval_count"`
	EvalCount       int         `json:"eval_count"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// ModuleInfo implements core.Module.
func (p *Provider) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "provider.ollama",
		New: func() core.Module { return &Provider{} },
	}
}

// Configure implements core.Configurable.
func (p *Provider) Configure(node *yaml.Node) error {
	if err := node.Decode(&p.config); err != nil {
		return fmt.Errorf("provider.ollama: decode config: %w", err)
	}
	p.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (p *Provider) Provision(ctx *core.AppContext) error {
	p.config.defaults()
	p.logger = ctx.Logger
	p.client = &http.Client{
		Transport: &http.Transport{ResponseHeaderTimeout: p.config.Timeout},
	}
	provider.EntriesFrom(ctx).Add(provider.ChainEntry{
		Name:     p.config.Name,
		Provider: p,
		Role:     p.config.Role,
		Health:   p.config.Health,
	})
	return nil
}

// Validate implements core.Validator.
func (p *Provider) Validate() error {
	return p.config.validate()
}

// Start checks that the server is up and the model is pulled. Problems are
// logged only; the chain's probes take over from here.
func (p *Provider) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.Timeout)
	defer cancel()

	models, err := p.listModels(ctx)
	if err != nil {
		p.logger.Error("ollama unreachable", "base_url", p.config.BaseURL, "error", err)
		return nil
	}
	if !hasModel(models, p.config.Model) {
		p.logger.Warn("ollama model not found", "model", p.config.Model, "available", models)
		return nil
	}
	p.logger.Info("ollama model ready", "model", p.config.Model)
	return nil
}

// Complete implements provider.Provider.
func (p *Provider) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	body := chatRequest{
		Model:     p.config.Model,
		Messages:  make([]chatMessage, len(req.Messages)),
		KeepAlive: p.config.KeepAlive,
		Options: chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		},
	}
	if body.Options.NumPredict == 0 {
		body.Options.NumPredict = p.config.MaxTokens
	}
	for i, m := range req.Messages {
		body.Messages[i] = chatMessage{Role: string(m.Role), Content: m.Content}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return provider.CompletionResponse{}, ctx.Err()
		}
		return provider.CompletionResponse{}, fmt.Errorf("%w: %w", provider.ErrProviderDown, err)
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return provider.CompletionResponse{}, provider.ErrorFromResponse(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("decode response: %w", err)
	}

	return provider.CompletionResponse{
		Content:      strings.TrimSpace(out.Message.Content),
		FinishReason: provider.FinishReason(out.DoneReason),
		Usage: provider.TokenUsage{
			PromptTokens:     out.PromptEvalCount,
			CompletionTokens: out.EvalCount,
			TotalTokens:      out.PromptEvalCount + out.EvalCount,
		},
	}, nil
}

// ModelName implements provider.Provider.
func (p *Provider) ModelName() string {
	return p.config.Model
}

// HealthCheck implements provider.HealthChecker. The server must answer
// and list the configured model.
func (p *Provider) HealthCheck(ctx context.Context) error {
	models, err := p.listModels(ctx)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", provider.ErrProviderDown, err)
	}
	if !hasModel(models, p.config.Model) {
		return fmt.Errorf("%w: model %q not pulled", provider.ErrProviderDown, p.config.Model)
	}
	return nil
}

func (p *Provider) listModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET /api/tags: HTTP %d", resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, len(tags.Models))
	for i, m := range tags.Models {
		names[i] = m.Name
	}
	return names, nil
}

// hasModel matches exactly, or ignoring an implicit ":latest" tag.
func hasModel(models []string, model string) bool {
	if slices.Contains(models, model) {
		return true
	}
	if !strings.Contains(model, ":") {
		return slices.Contains(models, model+":latest")
	}
	return false
}
