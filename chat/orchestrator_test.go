package chat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"gemchat/failover"
	"gemchat/jobs"
	"gemchat/memory"
	"gemchat/model"
	"gemchat/provider/testutil"
	"gemchat/storage"
)

func newTestOrchestrator(t *testing.T, keys ...string) (*Orchestrator, *storage.Store, *testutil.MockClient, *jobs.Queue) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := testutil.NewMockClient()
	rotator := failover.New(keys, store, zerolog.Nop())
	queue := jobs.New(context.Background(), zerolog.Nop())
	t.Cleanup(queue.Close)

	memories := memory.New(store, rotator, client, "meta-model", queue, zerolog.Nop())
	o := New(store, rotator, client, memories, queue, "chat-model", "image-model", zerolog.Nop())
	return o, store, client, queue
}

func TestSendPersistsBothEntriesInOrder(t *testing.T) {
	o, store, client, _ := newTestOrchestrator(t, "key-a")

	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		callback("Hi ", nil)
		callback("there", nil)
		return nil
	}

	result, err := o.Send(context.Background(), "Hello", nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Reply.Text != "Hi there" {
		t.Errorf("reply = %q", result.Reply.Text)
	}

	messages, err := store.Messages()
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(messages))
	}
	if messages[0].Role != model.RoleUser || messages[0].Text != "Hello" {
		t.Errorf("first entry = %+v", messages[0])
	}
	if messages[1].Role != model.RoleModel || messages[1].Text != "Hi there" {
		t.Errorf("second entry = %+v", messages[1])
	}
}

func TestSendUserEntrySurvivesFailure(t *testing.T) {
	o, store, client, _ := newTestOrchestrator(t, "key-a")

	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		return errors.New("backend down")
	}

	_, err := o.Send(context.Background(), "Hello", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}

	messages, _ := store.Messages()
	if len(messages) != 1 {
		t.Fatalf("message count = %d, want 1", len(messages))
	}
	if messages[0].Role != model.RoleUser {
		t.Errorf("surviving entry = %+v", messages[0])
	}
}

func TestSendNoKeys(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t)

	_, err := o.Send(context.Background(), "Hello", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "/keys add") {
		t.Errorf("err = %v, want guidance to add keys", err)
	}
}

func TestSendExhaustionMessage(t *testing.T) {
	o, _, client, _ := newTestOrchestrator(t, "key-a", "key-b")

	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		return errors.New("invalid key")
	}

	_, err := o.Send(context.Background(), "Hello", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "all API keys failed") {
		t.Errorf("err = %v", err)
	}
	if client.StreamCalls() != 2 {
		t.Errorf("expected one attempt per key, got %d", client.StreamCalls())
	}
}

func TestSendRotatesBeforeFirstContent(t *testing.T) {
	o, store, client, _ := newTestOrchestrator(t, "key-a", "key-b")

	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		if apiKey == "key-a" {
			return errors.New("quota exceeded")
		}
		callback("From key-b", nil)
		return nil
	}

	result, err := o.Send(context.Background(), "Hello", nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Reply.Text != "From key-b" {
		t.Errorf("reply = %q", result.Reply.Text)
	}
	idx, _ := store.RotationIndex()
	if idx != 1 {
		t.Errorf("rotation index = %d, want 1", idx)
	}
}

func TestSendMidStreamFailureDoesNotRotate(t *testing.T) {
	o, store, client, _ := newTestOrchestrator(t, "key-a", "key-b")

	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		callback("partial ", nil)
		return errors.New("connection reset")
	}

	_, err := o.Send(context.Background(), "Hello", nil, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	// The failing stream already delivered content, so no second
	// credential is tried and the cursor stays put.
	if client.StreamCalls() != 1 {
		t.Errorf("stream calls = %d, want 1", client.StreamCalls())
	}
	idx, _ := store.RotationIndex()
	if idx != 0 {
		t.Errorf("rotation index = %d, want 0", idx)
	}
}

func TestSendDeduplicatesCitations(t *testing.T) {
	o, _, client, _ := newTestOrchestrator(t, "key-a")

	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		callback("a", []model.Citation{{URI: "https://example.com/1", Title: "One"}})
		callback("b", []model.Citation{
			{URI: "https://example.com/1", Title: "One"},
			{URI: "https://example.com/2", Title: "Two"},
		})
		return nil
	}

	result, err := o.Send(context.Background(), "Hello", nil, nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(result.Citations) != 2 {
		t.Fatalf("citations = %v", result.Citations)
	}
	if result.Citations[0].URI != "https://example.com/1" || result.Citations[1].URI != "https://example.com/2" {
		t.Errorf("citation order = %v", result.Citations)
	}
}

func TestSendSchedulesExtractionWithFullExchange(t *testing.T) {
	o, _, client, queue := newTestOrchestrator(t, "key-a")

	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		callback("Hi there", nil)
		return nil
	}
	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return `{"memory": []}`, nil
	}

	if _, err := o.Send(context.Background(), "Hello", nil, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	queue.Wait()

	prompts := client.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("expected one extraction call, got %d", len(prompts))
	}
	// The extraction payload covers both sides of the exchange.
	if !strings.Contains(prompts[0], "Hello") || !strings.Contains(prompts[0], "Hi there") {
		t.Errorf("extraction prompt missing the exchange:\n%s", prompts[0])
	}
}

func TestSendHistoryExcludesCurrentInput(t *testing.T) {
	o, _, client, _ := newTestOrchestrator(t, "key-a")

	var captured model.GenerateRequest
	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		captured = req
		callback("ok", nil)
		return nil
	}

	if _, err := o.Send(context.Background(), "first", nil, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(captured.History) != 0 {
		t.Errorf("first turn history = %v, want empty", captured.History)
	}

	if _, err := o.Send(context.Background(), "second", nil, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(captured.History) != 2 {
		t.Fatalf("second turn history length = %d, want 2", len(captured.History))
	}
	if captured.History[0].Text != "first" || captured.History[1].Text != "ok" {
		t.Errorf("history = %v", captured.History)
	}
	if captured.Text != "second" {
		t.Errorf("input = %q", captured.Text)
	}
}

func TestSendUsesStoredModelName(t *testing.T) {
	o, store, client, _ := newTestOrchestrator(t, "key-a")

	if err := store.SetModelName("custom-model"); err != nil {
		t.Fatalf("SetModelName: %v", err)
	}
	var captured model.GenerateRequest
	client.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		captured = req
		callback("ok", nil)
		return nil
	}

	if _, err := o.Send(context.Background(), "Hello", nil, nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if captured.Model != "custom-model" {
		t.Errorf("model = %q, want custom-model", captured.Model)
	}
}

func TestGenerateImagePersistsAttachment(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t, "key-a")

	reply, err := o.GenerateImage(context.Background(), "a lighthouse")
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if reply.Image == nil || reply.Image.Original == nil {
		t.Fatal("reply missing image attachment")
	}

	messages, _ := store.Messages()
	if len(messages) != 2 {
		t.Fatalf("message count = %d, want 2", len(messages))
	}
	if !strings.Contains(messages[0].Text, "a lighthouse") {
		t.Errorf("user entry = %q", messages[0].Text)
	}
	if messages[1].Image == nil {
		t.Error("persisted model entry lost its image")
	}
}

func TestGreetingOnlyOnEmptyTranscript(t *testing.T) {
	o, store, _, _ := newTestOrchestrator(t, "key-a", "key-b")

	greeting, err := o.Greeting(2)
	if err != nil {
		t.Fatalf("Greeting: %v", err)
	}
	if greeting == nil || !strings.Contains(greeting.Text, "2 API key(s)") {
		t.Errorf("greeting = %+v", greeting)
	}

	again, err := o.Greeting(2)
	if err != nil {
		t.Fatalf("Greeting: %v", err)
	}
	if again != nil {
		t.Error("greeting must not repeat on a non-empty transcript")
	}
	messages, _ := store.Messages()
	if len(messages) != 1 {
		t.Errorf("message count = %d, want 1", len(messages))
	}
}
