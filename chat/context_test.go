package chat

import (
	"strings"
	"testing"
	"time"
)

func TestBuildSystemInstruction(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	got := buildSystemInstruction([]string{"User's name is Alex", "User likes Go"}, now)

	for _, want := range []string{
		"Your name is Gemini",
		"Google Search tool",
		"Here are some relevant memories from past conversations:",
		"User's name is Alex",
		"User likes Go",
		"Sat, 14 Mar 2026 09:30:00",
		"Markdown",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("instruction missing %q", want)
		}
	}
}

func TestBuildSystemInstructionNoMemories(t *testing.T) {
	got := buildSystemInstruction(nil, time.Now())
	if strings.Contains(got, "relevant memories") {
		t.Error("memory block should be absent when nothing was retrieved")
	}
	if !strings.Contains(got, "Your name is Gemini") {
		t.Error("persona missing")
	}
}
