// Package provider implements model.Client against the Gemini API.
//
// The chat, memory, and failover packages stay provider-agnostic: they
// consume model.Client, and this package is the one place that knows
// about the wire SDK. Tests use provider/testutil.MockClient instead.
package provider

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"gemchat/model"
)

// GeminiClient implements model.Client using the official Gemini Go SDK.
//
// A fresh SDK client is built per call because the credential changes
// between rotation attempts; construction is cheap (no network I/O).
type GeminiClient struct{}

// NewGeminiClient creates a Gemini-backed model client.
func NewGeminiClient() *GeminiClient {
	return &GeminiClient{}
}

func newSDKClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return client, nil
}

// GenerateStream implements model.Client.GenerateStream. The call opens
// a streaming generateContent request with Google Search grounding and
// fully consumes the stream, forwarding text deltas and newly seen
// grounding sources to the callback.
func (g *GeminiClient) GenerateStream(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
	client, err := newSDKClient(ctx, apiKey)
	if err != nil {
		return err
	}

	contents := convertHistory(req.History)

	var parts []*genai.Part
	if req.Text != "" {
		parts = append(parts, genai.NewPartFromText(req.Text))
	}
	if req.Image != nil {
		parts = append(parts, genai.NewPartFromBytes(req.Image.Data, req.Image.MIMEType))
	}
	if len(parts) == 0 {
		return fmt.Errorf("no content to send")
	}
	contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Tools: []*genai.Tool{
			{GoogleSearch: &genai.GoogleSearch{}},
		},
	}

	seen := make(map[string]bool)
	for resp, err := range client.Models.GenerateContentStream(ctx, req.Model, contents, config) {
		if err != nil {
			return fmt.Errorf("Gemini streaming error: %w", err)
		}

		delta := resp.Text()
		citations := collectCitations(resp, seen)
		if delta != "" || len(citations) > 0 {
			if callback != nil {
				callback(delta, citations)
			}
		}
	}

	return nil
}

// Generate implements model.Client.Generate for non-streaming meta-task
// calls. Grounding tools are not attached; meta-tasks return JSON.
func (g *GeminiClient) Generate(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
	client, err := newSDKClient(ctx, apiKey)
	if err != nil {
		return "", err
	}

	resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("Gemini generate error: %w", err)
	}

	return resp.Text(), nil
}

// GenerateImage implements model.Client.GenerateImage.
func (g *GeminiClient) GenerateImage(ctx context.Context, apiKey, modelName, prompt string) (*model.ImageData, error) {
	client, err := newSDKClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}
	resp, err := client.Models.GenerateContent(ctx, modelName, genai.Text(prompt), config)
	if err != nil {
		return nil, fmt.Errorf("Gemini image generation error: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return &model.ImageData{
					MIMEType: part.InlineData.MIMEType,
					Data:     part.InlineData.Data,
				}, nil
			}
		}
	}

	return nil, fmt.Errorf("the response did not contain an image; try a different prompt")
}

// convertHistory maps transcript entries to API contents. The API
// requires the first content to be user-role, so leading model entries
// (the greeting) are dropped. History images are always the compressed
// copy, bounding replayed payload size.
func convertHistory(history []model.Message) []*genai.Content {
	var contents []*genai.Content
	started := false
	for _, m := range history {
		if !started {
			if m.Role != model.RoleUser {
				continue
			}
			started = true
		}

		var parts []*genai.Part
		if m.Text != "" {
			parts = append(parts, genai.NewPartFromText(m.Text))
		}
		if img := m.Image.ForHistory(); img != nil && m.Role == model.RoleUser {
			parts = append(parts, genai.NewPartFromBytes(img.Data, img.MIMEType))
		}
		if len(parts) == 0 {
			continue
		}

		role := genai.Role(genai.RoleUser)
		if m.Role == model.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromParts(parts, role))
	}
	return contents
}

// collectCitations extracts grounding sources not yet reported for this
// call.
func collectCitations(resp *genai.GenerateContentResponse, seen map[string]bool) []model.Citation {
	var citations []model.Citation
	for _, cand := range resp.Candidates {
		if cand.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range cand.GroundingMetadata.GroundingChunks {
			if chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
				continue
			}
			seen[chunk.Web.URI] = true
			citations = append(citations, model.Citation{
				URI:   chunk.Web.URI,
				Title: chunk.Web.Title,
			})
		}
	}
	return citations
}
