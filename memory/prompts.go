package memory

import (
	"encoding/json"
	"fmt"

	"gemchat/model"
)

// convoEntry is the trimmed view of a transcript entry handed to the
// extraction meta-task. Images are collapsed to the compressed copy, so
// full-resolution bytes never reach a meta-task.
type convoEntry struct {
	Role  string           `json:"role"`
	Text  string           `json:"text,omitempty"`
	Image *model.ImageData `json:"image,omitempty"`
}

func extractPrompt(convo []model.Message) (string, error) {
	entries := make([]convoEntry, 0, len(convo))
	for _, m := range convo {
		entries = append(entries, convoEntry{
			Role:  m.Role,
			Text:  m.Text,
			Image: m.Image.ForHistory(),
		})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode conversation: %w", err)
	}

	return fmt.Sprintf(`You are a memory agent. Your task is to analyze the following conversation and extract key information to be stored in a long-term memory.
Extract facts, user preferences, and any other important details that should be remembered for future conversations.
Return ONLY the information as a valid JSON object with a single key "memory" which contains an array of strings.
If no new information is present, return an empty array.

Conversation:
%s`, raw), nil
}

func consolidatePrompt(memories []string) (string, error) {
	raw, err := json.Marshal(memories)
	if err != nil {
		return "", fmt.Errorf("failed to encode memories: %w", err)
	}

	return fmt.Sprintf(`You are a memory consolidation agent. Your task is to review the following list of memories and consolidate them into a more concise, organized, and coherent set of facts.
- **Merge related facts aggressively.** For example, "User likes dogs" and "User has a golden retriever" must become "User has a golden retriever dog."
- **Remove redundant or outdated information.** If a memory is a less specific version of another, delete it.
- **Eliminate meta-commentary.** Remove memories about the AI's own limitations or capabilities (e.g., "I cannot access personal information").
- **Rephrase memories to be clearer and more objective.**
- Return ONLY the consolidated information as a valid JSON object with a single key "consolidated_memories" which contains an array of strings.

Memories to consolidate:
%s`, raw), nil
}

func retrievePrompt(memories []string, query string) (string, error) {
	raw, err := json.Marshal(memories)
	if err != nil {
		return "", fmt.Errorf("failed to encode memories: %w", err)
	}

	return fmt.Sprintf(`You are a retrieval agent. Your task is to select the most relevant memories from the following list to help answer the user's query.
- Analyze the user's query to understand its intent, even if it is vague. For example, a query like "what about my car" should be interpreted as a request for any stored information about their car.
- Return ONLY the most relevant memories as a valid JSON object with a single key "relevant_memories" which contains an array of strings.
- If no memories are relevant, or if the query is a simple greeting, return an empty array.
- Do not return more than 5 memories.

Memories:
%s

Query:
%s`, raw, query), nil
}
