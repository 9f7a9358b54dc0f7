package anthropic

import (
	"strings"

	sdkanthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/flemzord/robobrain/internal/provider"
)

// convertRequest maps a chain request onto Messages API parameters. System
// messages move to the dedicated system field.
func convertRequest(req provider.CompletionRequest, cfg Config) sdkanthropic.MessageNewParams {
	params := sdkanthropic.MessageNewParams{
		Model:     sdkanthropic.Model(cfg.Model),
		MaxTokens: int64(cfg.MaxTokens),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = int64(req.MaxTokens)
	}
	if req.Temperature != nil {
		// The API accepts [0, 1].
		params.Temperature = sdkanthropic.Float(min(max(*req.Temperature, 0), 1))
	}

	for _, m := range req.Messages {
		switch m.Role {
		case provider.MessageRoleSystem:
			params.System = append(params.System, sdkanthropic.TextBlockParam{Text: m.Content})
		case provider.MessageRoleAssistant:
			params.Messages = append(params.Messages,
				sdkanthropic.NewAssistantMessage(sdkanthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages,
				sdkanthropic.NewUserMessage(sdkanthropic.NewTextBlock(m.Content)))
		}
	}
	return params
}

// convertResponse joins the text blocks of msg.
func convertResponse(msg *sdkanthropic.Message) provider.CompletionResponse {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return provider.CompletionResponse{
		Content:      text.String(),
		FinishReason: convertStopReason(msg.StopReason),
		Usage: provider.TokenUsage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}

func convertStopReason(reason sdkanthropic.StopReason) provider.FinishReason {
	if reason == sdkanthropic.StopReasonMaxTokens {
		return provider.FinishReasonLength
	}
	return provider.FinishReasonStop
}
