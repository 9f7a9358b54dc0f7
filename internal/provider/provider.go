package provider

import "context"

// Provider is a text-in, text-out connection to a language model.
// Concrete implementations live under modules/provider and also implement
// core.Module for lifecycle management.
type Provider interface {
	// Complete sends the conversation and returns the model's reply.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is implemented by providers that can be probed cheaply.
// The chain probes providers in cooldown or marked dead and revives them
// once a probe succeeds.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
