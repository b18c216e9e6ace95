package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"gemchat/config"
	"gemchat/imageutil"
	appmodel "gemchat/model"
)

const attachTargetKB = 10

// handleCommand dispatches a slash command typed into the input box.
func (a AppView) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	// Anything but a repeated /clear cancels a pending confirmation.
	if cmd != "/clear" {
		a.confirmClear = false
	}

	switch cmd {
	case "/help":
		a.showHelp = true
		return a, nil

	case "/quit", "/exit":
		return a, tea.Quit

	case "/keys":
		return a.handleKeysCommand(arg)

	case "/model":
		if arg == "" {
			name, _ := a.store.ModelName("")
			a.status = fmt.Sprintf("current model: %s", name)
			return a, nil
		}
		if err := a.store.SetModelName(arg); err != nil {
			a.status = ErrorStyle.Render(err.Error())
			return a, nil
		}
		a.status = fmt.Sprintf("model set to %s", arg)
		return a, nil

	case "/memory":
		return a.handleMemoryCommand(arg)

	case "/clear":
		if !a.confirmClear {
			a.confirmClear = true
			a.status = "this deletes the whole chat history; run /clear again to confirm"
			return a, nil
		}
		a.confirmClear = false
		if err := a.store.ClearMessages(); err != nil {
			a.status = ErrorStyle.Render(err.Error())
			return a, nil
		}
		a.entries = nil
		a.citations = nil
		a.status = "chat history cleared"
		a.refreshViewport(true)
		return a, nil

	case "/copy":
		for i := len(a.entries) - 1; i >= 0; i-- {
			if a.entries[i].Role == appmodel.RoleModel {
				if err := clipboard.WriteAll(a.entries[i].Text); err != nil {
					a.status = ErrorStyle.Render("clipboard unavailable: " + err.Error())
				} else {
					a.status = "last response copied to clipboard"
				}
				return a, nil
			}
		}
		a.status = "nothing to copy yet"
		return a, nil

	case "/search":
		return a.handleSearchCommand(arg)

	case "/attach":
		return a.handleAttachCommand(arg)

	case "/imagine":
		if arg == "" {
			a.status = "usage: /imagine <prompt>"
			return a, nil
		}
		a.entries = append(a.entries, appmodel.Message{
			Role:      appmodel.RoleUser,
			Text:      fmt.Sprintf("Generate an image of: %s", arg),
			Timestamp: time.Now(),
		})
		a.streaming = true
		a.turnID = uuid.NewString()
		a.currentResp.Reset()
		a.refreshViewport(true)
		return a, tea.Batch(a.startImageTurn(a.turnID, arg), a.waitForEvent(), a.spin.Tick)

	default:
		a.status = fmt.Sprintf("unknown command %s; try /help", cmd)
		return a, nil
	}
}

func (a AppView) handleKeysCommand(arg string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(arg, " ", 2)
	sub := strings.ToLower(parts[0])

	switch sub {
	case "add":
		if len(parts) < 2 || strings.TrimSpace(parts[1]) == "" {
			a.status = "usage: /keys add <key1,key2,...>"
			return a, nil
		}
		var keys []string
		for _, k := range strings.Split(parts[1], ",") {
			if k = strings.TrimSpace(k); k != "" {
				keys = append(keys, k)
			}
		}
		if err := a.store.SetAPIKeys(keys); err != nil {
			a.status = ErrorStyle.Render(err.Error())
			return a, nil
		}
		a.rotator.SetKeys(keys)
		a.status = fmt.Sprintf("saved %d API key(s)", len(keys))
		return a, nil

	case "clear":
		if err := a.store.SetAPIKeys(nil); err != nil {
			a.status = ErrorStyle.Render(err.Error())
			return a, nil
		}
		a.rotator.SetKeys(nil)
		a.status = "API keys cleared"
		return a, nil

	case "list", "":
		keys, err := a.store.APIKeys()
		if err != nil {
			a.status = ErrorStyle.Render(err.Error())
			return a, nil
		}
		if len(keys) == 0 {
			a.status = "no API keys stored; add some with /keys add"
			return a, nil
		}
		masked := make([]string, len(keys))
		for i, k := range keys {
			masked[i] = maskKey(k)
		}
		a.status = "keys: " + strings.Join(masked, ", ")
		return a, nil

	default:
		a.status = "usage: /keys [add <keys>|list|clear]"
		return a, nil
	}
}

func (a AppView) handleMemoryCommand(arg string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(arg, " ", 2)
	sub := strings.ToLower(parts[0])
	rest := ""
	if len(parts) > 1 {
		rest = strings.TrimSpace(parts[1])
	}

	switch sub {
	case "", "list":
		store := a.store
		return a, func() tea.Msg {
			list, err := store.Memories()
			return appmodel.MemoryListMsg{Memories: list, Err: err}
		}

	case "clear":
		if err := a.store.ClearMemories(); err != nil {
			a.status = ErrorStyle.Render(err.Error())
			return a, nil
		}
		a.status = "all memories deleted"
		return a, nil

	case "export":
		memories := a.memories
		return a, func() tea.Msg {
			path, err := memories.ExportToFile(rest)
			if err != nil {
				return appmodel.StatusMsg{Text: ErrorStyle.Render(err.Error())}
			}
			return appmodel.StatusMsg{Text: "memories exported to " + path}
		}

	case "import":
		if rest == "" {
			a.status = "usage: /memory import <path>"
			return a, nil
		}
		memories := a.memories
		return a, func() tea.Msg {
			added, err := memories.ImportFromFile(context.Background(), config.ExpandPath(rest))
			if err != nil {
				return appmodel.StatusMsg{Text: ErrorStyle.Render(err.Error())}
			}
			return appmodel.StatusMsg{Text: fmt.Sprintf("imported %d new memories", added)}
		}

	case "optimize":
		memories := a.memories
		return a, func() tea.Msg {
			if err := memories.Consolidate(context.Background()); err != nil {
				return appmodel.StatusMsg{Text: ErrorStyle.Render(err.Error())}
			}
			return appmodel.StatusMsg{Text: "memory consolidation finished"}
		}

	case "auto":
		switch strings.ToLower(rest) {
		case "on":
			if err := a.store.SetAutoConsolidate(true); err != nil {
				a.status = ErrorStyle.Render(err.Error())
				return a, nil
			}
			a.status = "auto-consolidation enabled"
		case "off":
			if err := a.store.SetAutoConsolidate(false); err != nil {
				a.status = ErrorStyle.Render(err.Error())
				return a, nil
			}
			a.status = "auto-consolidation disabled"
		default:
			enabled, _ := a.store.AutoConsolidate()
			a.status = fmt.Sprintf("auto-consolidation is %s", onOff(enabled))
		}
		return a, nil

	default:
		a.status = "usage: /memory [list|clear|export [path]|import <path>|optimize|auto on|off]"
		return a, nil
	}
}

func (a AppView) handleSearchCommand(query string) (tea.Model, tea.Cmd) {
	if query == "" {
		a.status = "usage: /search <query>"
		return a, nil
	}
	matches, err := a.store.SearchMessages(query)
	if err != nil {
		a.status = ErrorStyle.Render(err.Error())
		return a, nil
	}
	var b strings.Builder
	if len(matches) == 0 {
		b.WriteString(fmt.Sprintf("No messages match %q.", query))
	} else {
		b.WriteString(fmt.Sprintf("Messages matching %q:\n", query))
		for _, m := range matches {
			b.WriteString(fmt.Sprintf("  [%s] %s: %s\n", m.Message.Timestamp.Format("Jan 2 15:04"), m.Message.Role, m.Preview))
		}
	}
	a.entries = append(a.entries, appmodel.Message{
		Role:      appmodel.RoleModel,
		Text:      b.String(),
		Timestamp: time.Now(),
	})
	a.refreshViewport(true)
	return a, nil
}

func (a AppView) handleAttachCommand(path string) (tea.Model, tea.Cmd) {
	if path == "" {
		a.status = "usage: /attach <image-path>"
		return a, nil
	}
	path = config.ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		a.status = ErrorStyle.Render("failed to read image: " + err.Error())
		return a, nil
	}
	mimeType := mimeTypeForPath(path)
	if mimeType == "" {
		a.status = ErrorStyle.Render("unsupported image type; use png, jpeg, gif or webp")
		return a, nil
	}
	original := &appmodel.ImageData{MIMEType: mimeType, Data: data}
	compressed, err := imageutil.Compress(original, attachTargetKB)
	if err != nil {
		a.log.Warn().Err(err).Str("path", path).Msg("image compression failed, keeping original")
		compressed = original
	}
	a.pendingImage = &appmodel.ImageAttachment{Original: original, Compressed: compressed}
	a.status = fmt.Sprintf("attached %s; it will be sent with your next message", filepath.Base(path))
	return a, nil
}

func (a AppView) helpView() string {
	help := `Commands

  /keys add <k1,k2>     Save API keys (replaces the stored set)
  /keys list            Show stored keys, masked
  /keys clear           Remove all stored keys
  /model [name]         Show or set the chat model
  /attach <path>        Attach an image to your next message
  /imagine <prompt>     Generate an image
  /memory               List stored memories
  /memory clear         Delete all memories
  /memory export [path] Export memories to JSON
  /memory import <path> Import memories from JSON
  /memory optimize      Consolidate stored memories now
  /memory auto on|off   Toggle automatic consolidation
  /search <query>       Fuzzy-search the chat history
  /copy                 Copy the last response to the clipboard
  /clear                Clear the chat history
  /quit                 Exit

Press Esc to close this screen.`
	return HelpStyle.Render(help)
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func mimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
