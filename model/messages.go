package model

// Bubbletea messages emitted by background work and consumed by the UI.

type StreamChunkMsg struct {
	TurnID string
	Delta  string
}

type StreamCitationsMsg struct {
	TurnID    string
	Citations []Citation
}

type StreamDoneMsg struct {
	TurnID       string
	FullResponse string
	Citations    []Citation
}

type StreamErrorMsg struct {
	TurnID string
	Err    error
}

type ImageGeneratedMsg struct {
	TurnID string
	Entry  Message
}

type MemoryListMsg struct {
	Memories []Memory
	Err      error
}

type StatusMsg struct {
	Text string
}
