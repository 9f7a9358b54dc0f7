package provider

// Role is the position a provider takes in the chain.
type Role string

// Chain roles. Primaries are tried first, in configuration order.
const (
	RolePrimary  Role = "primary"
	RoleFallback Role = "fallback"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePrimary || r == RoleFallback
}

// MessageRole identifies the sender of a message.
type MessageRole string

// MessageRole constants.
const (
	MessageRoleSystem    MessageRole = "system"
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one entry of the conversation sent to the model.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// CompletionRequest is the input to Provider.Complete. Zero MaxTokens and
// nil Temperature leave the choice to the provider configuration.
type CompletionRequest struct {
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// FinishReason describes why the model stopped generating.
type FinishReason string

// FinishReason constants.
const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
)

// CompletionResponse is the output of Provider.Complete.
type CompletionResponse struct {
	Content      string       `json:"content"`
	FinishReason FinishReason `json:"finish_reason"`
	Usage        TokenUsage   `json:"usage"`
}

// TokenUsage tracks token consumption for a completion.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Chat builds the two-message request used for structured replies.
func Chat(system, user string, temperature float64, maxTokens int) CompletionRequest {
	return CompletionRequest{
		Messages: []Message{
			{Role: MessageRoleSystem, Content: system},
			{Role: MessageRoleUser, Content: user},
		},
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	}
}
