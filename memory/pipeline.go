// Package memory implements the long-term memory pipeline: extraction
// of durable facts from finished conversations, periodic consolidation
// of the fact set, and per-turn retrieval of relevant facts.
//
// All three procedures call the model through the shared credential
// rotator; memory is an enhancement, so retrieval and extraction
// failures degrade silently rather than failing a chat turn.
package memory

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"gemchat/failover"
	"gemchat/jobs"
	"gemchat/model"
	"gemchat/storage"
)

// consolidateThreshold is both the minimum memory count for a
// consolidation run and the interval of the automatic trigger.
const consolidateThreshold = 5

// maxRetrieved caps how many memories the retrieval prompt may return.
const maxRetrieved = 5

// Pipeline wires the three memory procedures to the store, the
// credential rotator, and the background queue.
type Pipeline struct {
	store   *storage.Store
	rotator *failover.Rotator
	client  model.Client
	meta    string // model used for meta-tasks
	queue   *jobs.Queue
	log     zerolog.Logger
}

// New creates a Pipeline. metaModel is the model name used for every
// meta-task call.
func New(store *storage.Store, rotator *failover.Rotator, client model.Client, metaModel string, queue *jobs.Queue, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		rotator: rotator,
		client:  client,
		meta:    metaModel,
		queue:   queue,
		log:     log,
	}
}

// Extract asks the model for new durable facts in convo and appends
// them to the memory set. Intended to run on the background queue after
// a turn completes; the returned error is for logging only.
func (p *Pipeline) Extract(ctx context.Context, convo []model.Message) error {
	prompt, err := extractPrompt(convo)
	if err != nil {
		return err
	}

	var facts []string
	err = p.rotator.Do(ctx, "memory extraction", func(ctx context.Context, apiKey string) error {
		reply, err := p.client.Generate(ctx, apiKey, p.meta, prompt)
		if err != nil {
			return err
		}
		facts, err = parseExtractReply(reply)
		return err
	})
	if err != nil {
		return err
	}

	_, err = p.AppendFacts(ctx, facts, false)
	return err
}

// AppendFacts adds facts to the memory set, dropping any whose trimmed,
// case-folded text already exists (in the store or earlier in the
// batch). Returns the number actually added.
//
// When at least one fact was added, the post-append count is a positive
// multiple of five, the auto-consolidate flag is on, and skipConsolidate
// is false, a consolidation run is scheduled on the background queue.
// Consolidation's own replacement writes pass skipConsolidate=true so a
// run can never schedule another.
func (p *Pipeline) AppendFacts(ctx context.Context, facts []string, skipConsolidate bool) (int, error) {
	existing, err := p.store.Memories()
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(existing))
	for _, m := range existing {
		seen[normalize(m.Text)] = true
	}

	added := 0
	for _, fact := range facts {
		norm := normalize(fact)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		if err := p.store.AppendMemory(fact); err != nil {
			return added, err
		}
		added++
	}

	if skipConsolidate || added == 0 {
		return added, nil
	}

	total := len(existing) + added
	if total%consolidateThreshold != 0 {
		return added, nil
	}

	enabled, err := p.store.AutoConsolidate()
	if err != nil {
		p.log.Warn().Err(err).Msg("failed to read auto-consolidate flag")
		return added, nil
	}
	if enabled {
		p.log.Info().Int("memories", total).Msg("scheduling memory consolidation")
		p.queue.Submit("memory consolidation", p.Consolidate)
	}
	return added, nil
}

// Consolidate sends the whole memory set to the model for merging and
// replaces the set with the result. A no-op below the minimum count.
// On any failure the stored set is left untouched.
func (p *Pipeline) Consolidate(ctx context.Context) error {
	memories, err := p.store.Memories()
	if err != nil {
		return err
	}
	if len(memories) < consolidateThreshold {
		return nil
	}

	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Text
	}
	prompt, err := consolidatePrompt(texts)
	if err != nil {
		return err
	}

	var consolidated []string
	err = p.rotator.Do(ctx, "memory consolidation", func(ctx context.Context, apiKey string) error {
		reply, err := p.client.Generate(ctx, apiKey, p.meta, prompt)
		if err != nil {
			return err
		}
		consolidated, err = parseConsolidateReply(reply)
		return err
	})
	if err != nil {
		return err
	}

	// The consolidated set is taken as already deduplicated; replacing
	// wholesale bypasses AppendFacts so consolidation cannot re-trigger
	// itself.
	if err := p.store.ReplaceMemories(consolidated); err != nil {
		return err
	}
	p.log.Info().Int("before", len(memories)).Int("after", len(consolidated)).
		Msg("memory consolidation complete")
	return nil
}

// Retrieve selects up to five memories relevant to query. An empty
// memory set short-circuits without a model call. Rotation exhaustion
// degrades to an empty result: memory context is an enhancement, never
// a reason to fail the turn.
func (p *Pipeline) Retrieve(ctx context.Context, query string) ([]string, error) {
	memories, err := p.store.Memories()
	if err != nil {
		return nil, err
	}
	if len(memories) == 0 {
		return nil, nil
	}

	texts := make([]string, len(memories))
	for i, m := range memories {
		texts[i] = m.Text
	}
	prompt, err := retrievePrompt(texts, query)
	if err != nil {
		return nil, err
	}

	var relevant []string
	err = p.rotator.Do(ctx, "memory retrieval", func(ctx context.Context, apiKey string) error {
		reply, err := p.client.Generate(ctx, apiKey, p.meta, prompt)
		if err != nil {
			return err
		}
		relevant, err = parseRetrieveReply(reply)
		return err
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("memory retrieval failed, proceeding without memory context")
		return nil, nil
	}

	if len(relevant) > maxRetrieved {
		relevant = relevant[:maxRetrieved]
	}
	return relevant, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
