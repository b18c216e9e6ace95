package chat

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"
)

// buildSystemInstruction assembles the per-turn system text: persona,
// search directive, host context, and the retrieved-memory block. The
// memory block is injected verbatim, ahead of the formatting rules.
func buildSystemInstruction(retrieved []string, now time.Time) string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	zone, _ := now.Zone()

	memoryContext := ""
	if len(retrieved) > 0 {
		memoryContext = "Here are some relevant memories from past conversations:\n" +
			strings.Join(retrieved, "\n")
	}

	return fmt.Sprintf(`You are a helpful and friendly conversational AI. Your name is Gemini.
When the user asks for information that may be recent or requires up-to-date knowledge (like current events, specific product details, or exchange rates), you MUST use the Google Search tool to find the answer. Do not tell the user what you *would* find; perform the search and provide the information directly, citing your sources when available.
Current user context:
- OS: %s/%s
- Host: %s
- Current Time: %s
- Timezone: %s

%s

Always format your responses using Markdown. For code, use language-specific code blocks.`,
		runtime.GOOS, runtime.GOARCH, hostname,
		now.Format("Mon, 02 Jan 2006 15:04:05"), zone, memoryContext)
}
