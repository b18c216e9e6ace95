package model

import "context"

// Client abstracts the generative-language backend.
//
// The interface is defined in the model package (not provider) to avoid
// import cycles: the provider package implements it, and the chat and
// memory packages consume it without importing provider. Every call is
// bound to exactly one credential; credential failover lives above this
// interface, in the failover package.
type Client interface {
	// GenerateStream opens a streaming chat call and fully consumes the
	// stream, invoking the callback for each chunk. The error covers the
	// whole open-and-consume operation.
	GenerateStream(ctx context.Context, apiKey string, req GenerateRequest, callback StreamCallback) error

	// Generate performs a non-streaming call and returns the reply text.
	// Used for meta-tasks (memory extraction, consolidation, retrieval).
	Generate(ctx context.Context, apiKey, modelName, prompt string) (string, error)

	// GenerateImage asks an image-generation model for a picture and
	// returns the raw image payload.
	GenerateImage(ctx context.Context, apiKey, modelName, prompt string) (*ImageData, error)
}

// GenerateRequest carries everything one streaming chat call needs.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	History           []Message // prior turns, oldest first, excluding the current input
	Text              string
	Image             *ImageData // full-resolution payload for this turn, if any
}

// StreamCallback receives incremental output from a streaming call.
// citations holds only sources not previously reported for this call.
type StreamCallback func(delta string, citations []Citation)
