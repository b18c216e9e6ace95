package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"github.com/rs/zerolog"

	"gemchat/chat"
	"gemchat/failover"
	"gemchat/memory"
	appmodel "gemchat/model"
	"gemchat/storage"
)

// AppView is the root bubbletea model for the chat screen.
type AppView struct {
	store    *storage.Store
	orch     *chat.Orchestrator
	memories *memory.Pipeline
	rotator  *failover.Rotator
	log      zerolog.Logger

	viewport viewport.Model
	textarea textarea.Model
	spin     spinner.Model

	width  int
	height int
	ready  bool

	entries   []appmodel.Message
	streaming bool
	turnID    string

	// Streaming accumulator. Pointer to avoid copy on Update.
	currentResp *strings.Builder
	citations   []appmodel.Citation

	// Background work delivers messages through this channel.
	events chan tea.Msg

	// Image staged by /attach for the next message.
	pendingImage *appmodel.ImageAttachment

	status       string
	showHelp     bool
	confirmClear bool
}

func NewAppView(store *storage.Store, orch *chat.Orchestrator, memories *memory.Pipeline, rotator *failover.Rotator, log zerolog.Logger) AppView {
	ta := textarea.New()
	ta.Placeholder = "Type a message, or /help for commands..."
	ta.Focus()
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(accentColor)

	return AppView{
		store:       store,
		orch:        orch,
		memories:    memories,
		rotator:     rotator,
		log:         log,
		textarea:    ta,
		spin:        sp,
		currentResp: &strings.Builder{},
		events:      make(chan tea.Msg, 64),
	}
}

// LoadHistory seeds the transcript from storage and emits the first-run
// greeting when the transcript is empty.
func (a *AppView) LoadHistory() {
	entries, err := a.store.Messages()
	if err != nil {
		a.log.Error().Err(err).Msg("failed to load chat history")
		return
	}
	a.entries = entries
	if len(entries) == 0 {
		greeting, err := a.orch.Greeting(a.rotator.PoolSize())
		if err != nil {
			a.log.Error().Err(err).Msg("failed to persist greeting")
			return
		}
		if greeting != nil {
			a.entries = append(a.entries, *greeting)
		}
	}
}

func (a AppView) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, a.spin.Tick)
}

// waitForEvent relays one message from background work into the program.
func (a AppView) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-a.events
	}
}

// startTurn runs a chat turn off the UI goroutine. Everything, chunks
// and the final outcome alike, arrives through the events channel; the
// waitForEvent chain ends when it sees the done or error message.
func (a AppView) startTurn(turnID, text string, image *appmodel.ImageAttachment) tea.Cmd {
	orch := a.orch
	events := a.events
	return func() tea.Msg {
		go func() {
			result, err := orch.Send(context.Background(), text, image, func(delta string, citations []appmodel.Citation) {
				if delta != "" {
					events <- appmodel.StreamChunkMsg{TurnID: turnID, Delta: delta}
				}
				if len(citations) > 0 {
					events <- appmodel.StreamCitationsMsg{TurnID: turnID, Citations: citations}
				}
			})
			if err != nil {
				events <- appmodel.StreamErrorMsg{TurnID: turnID, Err: err}
				return
			}
			events <- appmodel.StreamDoneMsg{TurnID: turnID, FullResponse: result.Reply.Text, Citations: result.Citations}
		}()
		return nil
	}
}

func (a AppView) startImageTurn(turnID, prompt string) tea.Cmd {
	orch := a.orch
	events := a.events
	return func() tea.Msg {
		go func() {
			entry, err := orch.GenerateImage(context.Background(), prompt)
			if err != nil {
				events <- appmodel.StreamErrorMsg{TurnID: turnID, Err: err}
				return
			}
			events <- appmodel.ImageGeneratedMsg{TurnID: turnID, Entry: *entry}
		}()
		return nil
	}
}

func (a AppView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		headerHeight := 1
		footerHeight := a.textarea.Height() + 2
		if !a.ready {
			a.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			a.ready = true
		} else {
			a.viewport.Width = msg.Width
			a.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		a.textarea.SetWidth(msg.Width - 2)
		a.refreshViewport(true)
		return a, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return a, tea.Quit
		case tea.KeyEsc:
			if a.showHelp {
				a.showHelp = false
				return a, nil
			}
		case tea.KeyEnter:
			if !a.streaming {
				input := strings.TrimSpace(a.textarea.Value())
				if input == "" {
					return a, nil
				}
				a.textarea.Reset()
				a.status = ""
				if strings.HasPrefix(input, "/") {
					return a.handleCommand(input)
				}
				return a.submitTurn(input)
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spin, cmd = a.spin.Update(msg)
		if a.streaming {
			a.refreshViewport(false)
		}
		return a, cmd

	case appmodel.StreamChunkMsg:
		if msg.TurnID != a.turnID {
			return a, a.waitForEvent()
		}
		a.currentResp.WriteString(msg.Delta)
		a.refreshViewport(true)
		return a, a.waitForEvent()

	case appmodel.StreamCitationsMsg:
		if msg.TurnID != a.turnID {
			return a, a.waitForEvent()
		}
		a.citations = msg.Citations
		return a, a.waitForEvent()

	case appmodel.StreamDoneMsg:
		if msg.TurnID != a.turnID {
			return a, nil
		}
		a.finishTurn()
		a.entries = append(a.entries, appmodel.Message{
			Role:      appmodel.RoleModel,
			Text:      msg.FullResponse,
			Timestamp: time.Now(),
		})
		a.citations = msg.Citations
		a.refreshViewport(true)
		return a, nil

	case appmodel.StreamErrorMsg:
		if msg.TurnID != a.turnID {
			return a, nil
		}
		a.finishTurn()
		a.status = ErrorStyle.Render(msg.Err.Error())
		a.refreshViewport(true)
		return a, nil

	case appmodel.ImageGeneratedMsg:
		if msg.TurnID != a.turnID {
			return a, nil
		}
		a.finishTurn()
		a.entries = append(a.entries, msg.Entry)
		a.status = "image saved to chat history"
		a.refreshViewport(true)
		return a, nil

	case appmodel.MemoryListMsg:
		if msg.Err != nil {
			a.status = ErrorStyle.Render(msg.Err.Error())
			return a, nil
		}
		a.showMemoryList(msg.Memories)
		return a, nil

	case appmodel.StatusMsg:
		a.status = msg.Text
		return a, nil
	}

	var cmd tea.Cmd
	a.textarea, cmd = a.textarea.Update(msg)
	cmds = append(cmds, cmd)
	a.viewport, cmd = a.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return a, tea.Batch(cmds...)
}

// submitTurn appends the user entry locally and kicks off streaming.
func (a AppView) submitTurn(input string) (tea.Model, tea.Cmd) {
	image := a.pendingImage
	a.pendingImage = nil
	a.confirmClear = false

	a.entries = append(a.entries, appmodel.Message{
		Role:      appmodel.RoleUser,
		Text:      input,
		Image:     image,
		Timestamp: time.Now(),
	})
	a.streaming = true
	a.turnID = uuid.NewString()
	a.currentResp.Reset()
	a.citations = nil
	a.refreshViewport(true)

	return a, tea.Batch(a.startTurn(a.turnID, input, image), a.waitForEvent(), a.spin.Tick)
}

func (a *AppView) finishTurn() {
	a.streaming = false
	a.currentResp.Reset()
}

// refreshViewport re-renders the transcript. The last turn's citations
// render at the bottom, numbered in arrival order.
func (a *AppView) refreshViewport(scrollToBottom bool) {
	if !a.ready {
		return
	}
	var b strings.Builder
	for _, entry := range a.entries {
		b.WriteString(a.renderEntry(entry))
		b.WriteString("\n\n")
	}
	if a.streaming {
		if a.currentResp.Len() > 0 {
			b.WriteString(ModelStyle.Render("Gemini: "))
			b.WriteString(renderMarkdown(a.currentResp.String(), a.width))
		} else {
			b.WriteString(a.spin.View())
			b.WriteString(DimStyle.Render(" thinking..."))
		}
		b.WriteString("\n")
	}
	if len(a.citations) > 0 && !a.streaming {
		b.WriteString(CitationStyle.Render("Sources:"))
		b.WriteString("\n")
		for i, c := range a.citations {
			title := c.Title
			if title == "" {
				title = c.URI
			}
			b.WriteString(CitationStyle.Render(fmt.Sprintf("  [%d] %s", i+1, title)))
			b.WriteString("\n")
			b.WriteString(DimStyle.Render("      " + c.URI))
			b.WriteString("\n")
		}
	}
	a.viewport.SetContent(b.String())
	if scrollToBottom {
		a.viewport.GotoBottom()
	}
}

func (a *AppView) renderEntry(entry appmodel.Message) string {
	ts := DimStyle.Render(entry.Timestamp.Format("15:04"))
	switch entry.Role {
	case appmodel.RoleUser:
		text := entry.Text
		if entry.Image != nil {
			text += DimStyle.Render(" [image attached]")
		}
		return fmt.Sprintf("%s %s %s", ts, UserStyle.Render("You:"), text)
	default:
		text := renderMarkdown(entry.Text, a.width)
		if entry.Image != nil {
			text += "\n" + DimStyle.Render("[generated image]")
		}
		return fmt.Sprintf("%s %s %s", ts, ModelStyle.Render("Gemini:"), text)
	}
}

func (a *AppView) showMemoryList(memories []appmodel.Memory) {
	var b strings.Builder
	if len(memories) == 0 {
		b.WriteString("No memories stored yet.")
	} else {
		b.WriteString(fmt.Sprintf("Stored memories (%d):\n", len(memories)))
		for i, m := range memories {
			b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, m.Text))
		}
	}
	a.entries = append(a.entries, appmodel.Message{
		Role:      appmodel.RoleModel,
		Text:      b.String(),
		Timestamp: time.Now(),
	})
	a.refreshViewport(true)
}

func (a AppView) View() string {
	if !a.ready {
		return "Loading..."
	}
	if a.showHelp {
		return a.helpView()
	}

	header := BorderStyle.Render(strings.Repeat("─", max(0, a.width)))
	statusLine := a.statusBar()

	return fmt.Sprintf("%s\n%s\n%s\n%s", a.viewport.View(), header, a.textarea.View(), statusLine)
}

func (a AppView) statusBar() string {
	left := fmt.Sprintf("%d key(s)", a.rotator.PoolSize())
	if name, err := a.store.ModelName(""); err == nil && name != "" {
		left = fmt.Sprintf("%s | %s", left, name)
	}
	if a.pendingImage != nil {
		left += " | image staged"
	}
	text := left
	if a.status != "" {
		text = left + "  " + a.status
	}
	return StatusStyle.Render(runewidth.Truncate(text, max(10, a.width), "..."))
}
