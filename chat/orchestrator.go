// Package chat drives one conversation turn end to end: persist the
// user entry, retrieve relevant memories, stream the model's reply
// through the credential rotator, persist the completed reply, and
// schedule background fact extraction.
package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gemchat/failover"
	"gemchat/imageutil"
	"gemchat/jobs"
	"gemchat/memory"
	"gemchat/model"
	"gemchat/storage"
)

// compressTargetKB bounds the compressed copy of any attachment kept
// for history replay and meta-tasks.
const compressTargetKB = 10

// Orchestrator owns the per-turn control flow. All turns share one
// instance; the credential rotator serializes access to the shared
// rotation state underneath.
type Orchestrator struct {
	store      *storage.Store
	rotator    *failover.Rotator
	client     model.Client
	memories   *memory.Pipeline
	queue      *jobs.Queue
	log        zerolog.Logger
	chatModel  string // default, overridable via settings
	imageModel string
}

// New creates an Orchestrator. chatModel is the fallback model name
// when none is stored in settings.
func New(store *storage.Store, rotator *failover.Rotator, client model.Client, memories *memory.Pipeline, queue *jobs.Queue, chatModel, imageModel string, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		rotator:    rotator,
		client:     client,
		memories:   memories,
		queue:      queue,
		log:        log,
		chatModel:  chatModel,
		imageModel: imageModel,
	}
}

// TurnResult is the completed model side of a turn.
type TurnResult struct {
	Reply     model.Message
	Citations []model.Citation
}

// Send runs one chat turn. The user entry is persisted before any model
// call, so user intent survives generation failure; the model entry is
// persisted only after the stream completes. callback receives deltas
// and newly seen citations as they stream.
//
// The stream is bound to the credential that won the rotation: a
// failure before any content was delivered rotates to the next
// credential, a failure after content was delivered fails the turn.
func (o *Orchestrator) Send(ctx context.Context, text string, image *model.ImageAttachment, callback model.StreamCallback) (*TurnResult, error) {
	userEntry := model.Message{
		Role:      model.RoleUser,
		Text:      text,
		Image:     image,
		Timestamp: time.Now(),
	}
	if _, err := o.store.AppendMessage(userEntry); err != nil {
		return nil, err
	}

	retrieved, err := o.memories.Retrieve(ctx, text)
	if err != nil {
		o.log.Warn().Err(err).Msg("memory retrieval unavailable")
	}

	history, err := o.store.Messages()
	if err != nil {
		return nil, err
	}

	modelName, err := o.store.ModelName(o.chatModel)
	if err != nil {
		return nil, err
	}

	req := model.GenerateRequest{
		Model:             modelName,
		SystemInstruction: buildSystemInstruction(retrieved, time.Now()),
		History:           history[:len(history)-1], // everything before this turn's input
		Text:              text,
	}
	if image != nil {
		req.Image = image.Original
		if req.Image == nil {
			req.Image = image.Compressed
		}
	}

	var full strings.Builder
	var citations []model.Citation
	seen := make(map[string]bool)

	err = o.rotator.Do(ctx, "chat", func(ctx context.Context, apiKey string) error {
		// A retry on the next credential restarts the reply.
		full.Reset()
		citations = citations[:0]
		clear(seen)
		streamed := false

		err := o.client.GenerateStream(ctx, apiKey, req, func(delta string, newCitations []model.Citation) {
			if delta == "" && len(newCitations) == 0 {
				return
			}
			streamed = true
			full.WriteString(delta)
			for _, c := range newCitations {
				if !seen[c.URI] {
					seen[c.URI] = true
					citations = append(citations, c)
				}
			}
			if callback != nil {
				callback(delta, newCitations)
			}
		})
		if err != nil && streamed {
			// Content already reached the renderer; resuming on another
			// credential would splice two replies together.
			return failover.Fatal(err)
		}
		return err
	})
	if err != nil {
		if err == failover.ErrNoCredentials {
			return nil, fmt.Errorf("no API keys found; add your key(s) with /keys add")
		}
		if failover.IsExhausted(err) {
			return nil, fmt.Errorf("all API keys failed; check your keys with /keys list")
		}
		return nil, err
	}

	reply := model.Message{
		Role:      model.RoleModel,
		Text:      full.String(),
		Timestamp: time.Now(),
	}
	if _, err := o.store.AppendMessage(reply); err != nil {
		return nil, err
	}

	o.scheduleExtraction(append(history, reply))

	return &TurnResult{Reply: reply, Citations: citations}, nil
}

// scheduleExtraction queues background fact extraction over the history
// plus the just-completed exchange. Never awaited by the caller.
func (o *Orchestrator) scheduleExtraction(convo []model.Message) {
	o.queue.Submit("memory extraction", func(ctx context.Context) error {
		return o.memories.Extract(ctx, convo)
	})
}

// GenerateImage runs an image-generation turn: persist the user entry,
// call the image model through the rotator, compress a history copy,
// persist and return the model entry. No extraction is scheduled for
// image turns.
func (o *Orchestrator) GenerateImage(ctx context.Context, prompt string) (*model.Message, error) {
	userEntry := model.Message{
		Role:      model.RoleUser,
		Text:      fmt.Sprintf("Generate an image of: %s", prompt),
		Timestamp: time.Now(),
	}
	if _, err := o.store.AppendMessage(userEntry); err != nil {
		return nil, err
	}

	var img *model.ImageData
	err := o.rotator.Do(ctx, "image generation", func(ctx context.Context, apiKey string) error {
		var err error
		img, err = o.client.GenerateImage(ctx, apiKey, o.imageModel, prompt)
		return err
	})
	if err != nil {
		if err == failover.ErrNoCredentials {
			return nil, fmt.Errorf("no API keys found; add your key(s) with /keys add")
		}
		if failover.IsExhausted(err) {
			return nil, fmt.Errorf("all API keys failed for image generation; check your keys with /keys list")
		}
		return nil, err
	}

	compressed, err := imageutil.Compress(img, compressTargetKB)
	if err != nil {
		o.log.Warn().Err(err).Msg("failed to compress generated image, keeping original only")
		compressed = img
	}

	reply := model.Message{
		Role:      model.RoleModel,
		Text:      fmt.Sprintf("Generated image for: %q", prompt),
		Image:     &model.ImageAttachment{Original: img, Compressed: compressed},
		Timestamp: time.Now(),
	}
	if _, err := o.store.AppendMessage(reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Greeting records the first-run model greeting when the transcript is
// empty. Returns the entry, or nil if the transcript already has one.
func (o *Orchestrator) Greeting(keyCount int) (*model.Message, error) {
	messages, err := o.store.Messages()
	if err != nil {
		return nil, err
	}
	if len(messages) > 0 {
		return nil, nil
	}

	greeting := model.Message{
		Role:      model.RoleModel,
		Text:      fmt.Sprintf("Hello! I am Gemini, your personal AI assistant. Loaded %d API key(s). Your chat history will be saved. How can I help you today?", keyCount),
		Timestamp: time.Now(),
	}
	if _, err := o.store.AppendMessage(greeting); err != nil {
		return nil, err
	}
	return &greeting, nil
}
