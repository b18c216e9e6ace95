package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"gemchat/failover"
	"gemchat/jobs"
	"gemchat/provider/testutil"
	"gemchat/storage"
)

func newTestPipeline(t *testing.T) (*Pipeline, *storage.Store, *testutil.MockClient, *jobs.Queue) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.SetAPIKeys([]string{"test-key"}); err != nil {
		t.Fatalf("set keys: %v", err)
	}

	client := testutil.NewMockClient()
	rotator := failover.New([]string{"test-key"}, store, zerolog.Nop())
	queue := jobs.New(context.Background(), zerolog.Nop())
	t.Cleanup(queue.Close)

	p := New(store, rotator, client, "test-model", queue, zerolog.Nop())
	return p, store, client, queue
}

func memoryTexts(t *testing.T, store *storage.Store) []string {
	t.Helper()
	memories, err := store.Memories()
	if err != nil {
		t.Fatalf("list memories: %v", err)
	}
	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Text
	}
	return texts
}

func TestAppendFactsDeduplicates(t *testing.T) {
	p, store, _, _ := newTestPipeline(t)
	ctx := context.Background()

	added, err := p.AppendFacts(ctx, []string{"User's name is Alex", "User lives in Lisbon"}, true)
	if err != nil {
		t.Fatalf("AppendFacts: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	// Same facts with different case and padding are duplicates.
	added, err = p.AppendFacts(ctx, []string{"  user's name is alex  ", "USER LIVES IN LISBON"}, true)
	if err != nil {
		t.Fatalf("AppendFacts: %v", err)
	}
	if added != 0 {
		t.Errorf("added = %d, want 0", added)
	}
	if got := memoryTexts(t, store); len(got) != 2 {
		t.Errorf("memory count = %d, want 2", len(got))
	}
}

func TestAppendFactsDeduplicatesWithinBatch(t *testing.T) {
	p, store, _, _ := newTestPipeline(t)

	added, err := p.AppendFacts(context.Background(), []string{"Likes tea", "likes tea", "  Likes Tea "}, true)
	if err != nil {
		t.Fatalf("AppendFacts: %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	got := memoryTexts(t, store)
	if len(got) != 1 || got[0] != "Likes tea" {
		t.Errorf("stored = %v, want original verbatim text", got)
	}
}

func TestAppendFactsStoresVerbatim(t *testing.T) {
	p, store, _, _ := newTestPipeline(t)

	if _, err := p.AppendFacts(context.Background(), []string{"  Works at ACME Corp  "}, true); err != nil {
		t.Fatalf("AppendFacts: %v", err)
	}
	got := memoryTexts(t, store)
	if len(got) != 1 || got[0] != "  Works at ACME Corp  " {
		t.Errorf("stored = %q, normalization must only affect comparison", got)
	}
}

func TestConsolidateBelowMinimumIsNoOp(t *testing.T) {
	p, store, client, _ := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.AppendMemory(fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if err := p.Consolidate(ctx); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	if client.GenerateCalls() != 0 {
		t.Errorf("expected no model calls below the minimum, got %d", client.GenerateCalls())
	}
	if got := memoryTexts(t, store); len(got) != 4 {
		t.Errorf("memory set changed: %v", got)
	}
}

func TestConsolidateReplacesSet(t *testing.T) {
	p, store, client, _ := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.AppendMemory(fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return `{"consolidated_memories": ["merged fact A", "merged fact B"]}`, nil
	}

	if err := p.Consolidate(ctx); err != nil {
		t.Fatalf("Consolidate: %v", err)
	}
	got := memoryTexts(t, store)
	if len(got) != 2 || got[0] != "merged fact A" || got[1] != "merged fact B" {
		t.Errorf("memories = %v, want wholesale replacement", got)
	}
}

func TestConsolidateFailureLeavesSetUntouched(t *testing.T) {
	p, store, client, _ := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.AppendMemory(fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return "this is not json", nil
	}

	err := p.Consolidate(ctx)
	if !failover.IsExhausted(err) {
		t.Fatalf("expected exhaustion after malformed replies, got %v", err)
	}
	if got := memoryTexts(t, store); len(got) != 5 {
		t.Errorf("memory set must survive a failed consolidation, got %v", got)
	}
}

func TestRetrieveEmptySetShortCircuits(t *testing.T) {
	p, _, client, _ := newTestPipeline(t)

	got, err := p.Retrieve(context.Background(), "what is my name?")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil result, got %v", got)
	}
	if client.GenerateCalls() != 0 {
		t.Errorf("expected no model calls on an empty set, got %d", client.GenerateCalls())
	}
}

func TestRetrieveDegradesOnFailure(t *testing.T) {
	p, store, client, _ := newTestPipeline(t)

	if err := store.AppendMemory("User's name is Alex"); err != nil {
		t.Fatalf("append: %v", err)
	}
	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return "", fmt.Errorf("backend down")
	}

	got, err := p.Retrieve(context.Background(), "what is my name?")
	if err != nil {
		t.Fatalf("retrieval failure must not surface an error, got %v", err)
	}
	if got != nil {
		t.Errorf("expected empty result on failure, got %v", got)
	}
}

func TestRetrieveCapsAtFive(t *testing.T) {
	p, store, client, _ := newTestPipeline(t)

	for i := 0; i < 8; i++ {
		if err := store.AppendMemory(fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return `{"relevant_memories": ["a","b","c","d","e","f","g"]}`, nil
	}

	got, err := p.Retrieve(context.Background(), "everything")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(got) != 5 {
		t.Errorf("len = %d, want 5", len(got))
	}
}

func TestAutoConsolidateTriggersOnMultipleOfFive(t *testing.T) {
	p, store, client, queue := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if err := store.AppendMemory(fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return `{"consolidated_memories": ["merged"]}`, nil
	}

	// Crossing 4 -> 5 schedules a consolidation run.
	added, err := p.AppendFacts(ctx, []string{"fact 4"}, false)
	if err != nil {
		t.Fatalf("AppendFacts: %v", err)
	}
	if added != 1 {
		t.Fatalf("added = %d, want 1", added)
	}
	queue.Wait()

	if client.GenerateCalls() != 1 {
		t.Fatalf("expected one consolidation call, got %d", client.GenerateCalls())
	}
	got := memoryTexts(t, store)
	if len(got) != 1 || got[0] != "merged" {
		t.Errorf("memories = %v, want consolidated set", got)
	}
}

func TestAutoConsolidateSkipsWhenNothingAdded(t *testing.T) {
	p, store, client, queue := newTestPipeline(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := store.AppendMemory(fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	// Duplicates only: count stays at a multiple of five but nothing was
	// added, so no run is scheduled.
	added, err := p.AppendFacts(ctx, []string{"FACT 0", "fact 1"}, false)
	if err != nil {
		t.Fatalf("AppendFacts: %v", err)
	}
	if added != 0 {
		t.Fatalf("added = %d, want 0", added)
	}
	queue.Wait()

	if client.GenerateCalls() != 0 {
		t.Errorf("expected no consolidation call, got %d", client.GenerateCalls())
	}
}

func TestAutoConsolidateRespectsFlag(t *testing.T) {
	p, store, client, queue := newTestPipeline(t)
	ctx := context.Background()

	if err := store.SetAutoConsolidate(false); err != nil {
		t.Fatalf("set flag: %v", err)
	}
	for i := 0; i < 4; i++ {
		if err := store.AppendMemory(fmt.Sprintf("fact %d", i)); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if _, err := p.AppendFacts(ctx, []string{"fact 4"}, false); err != nil {
		t.Fatalf("AppendFacts: %v", err)
	}
	queue.Wait()

	if client.GenerateCalls() != 0 {
		t.Errorf("disabled flag must suppress consolidation, got %d calls", client.GenerateCalls())
	}
}

func TestExtractAppendsParsedFacts(t *testing.T) {
	p, store, client, _ := newTestPipeline(t)

	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return "```json\n{\"memory\": [\"User's name is Alex\"]}\n```", nil
	}

	err := p.Extract(context.Background(), nil)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	got := memoryTexts(t, store)
	if len(got) != 1 || got[0] != "User's name is Alex" {
		t.Errorf("memories = %v", got)
	}
}

func TestExtractMalformedReplyRotates(t *testing.T) {
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	client := testutil.NewMockClient()
	client.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		if apiKey == "bad-key" {
			return "garbage", nil
		}
		return `{"memory": ["fact"]}`, nil
	}
	rotator := failover.New([]string{"bad-key", "good-key"}, store, zerolog.Nop())
	queue := jobs.New(context.Background(), zerolog.Nop())
	defer queue.Close()
	p := New(store, rotator, client, "test-model", queue, zerolog.Nop())

	// A malformed reply counts as a credential failure and rotates.
	if err := p.Extract(context.Background(), nil); err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if client.GenerateCalls() != 2 {
		t.Errorf("expected rotation to the second key, got %d calls", client.GenerateCalls())
	}
	got := memoryTexts(t, store)
	if len(got) != 1 || got[0] != "fact" {
		t.Errorf("memories = %v", got)
	}
}
