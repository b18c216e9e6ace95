package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Meta-task replies are contractually JSON, but models routinely wrap
// them in a fenced code block. The fence is stripped before parsing;
// anything that still fails to parse is a first-class failure that the
// rotator treats like any other credential failure.

var fenceRe = regexp.MustCompile("(?s)```json\n(.*?)\n```")

func stripCodeFence(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return strings.TrimSpace(s)
}

type extractResponse struct {
	Memory []string `json:"memory"`
}

type consolidateResponse struct {
	ConsolidatedMemories []string `json:"consolidated_memories"`
}

type retrieveResponse struct {
	RelevantMemories []string `json:"relevant_memories"`
}

func parseExtractReply(reply string) ([]string, error) {
	var resp extractResponse
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &resp); err != nil {
		return nil, fmt.Errorf("malformed extraction reply: %w", err)
	}
	return resp.Memory, nil
}

func parseConsolidateReply(reply string) ([]string, error) {
	var resp consolidateResponse
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &resp); err != nil {
		return nil, fmt.Errorf("malformed consolidation reply: %w", err)
	}
	return resp.ConsolidatedMemories, nil
}

func parseRetrieveReply(reply string) ([]string, error) {
	var resp retrieveResponse
	if err := json.Unmarshal([]byte(stripCodeFence(reply)), &resp); err != nil {
		return nil, fmt.Errorf("malformed retrieval reply: %w", err)
	}
	return resp.RelevantMemories, nil
}
