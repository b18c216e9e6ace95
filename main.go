package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"gemchat/chat"
	"gemchat/config"
	"gemchat/failover"
	"gemchat/jobs"
	"gemchat/memory"
	"gemchat/provider"
	"gemchat/storage"
	"gemchat/ui"
)

const Version = "v0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := config.InitLogger(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("version", Version).Msg("gemchat starting")

	store, err := storage.Open(cfg.DataDir())
	if err != nil {
		fmt.Printf("Failed to open chat database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	keys, err := store.APIKeys()
	if err != nil {
		fmt.Printf("Failed to load API keys: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := jobs.New(ctx, log)
	defer queue.Close()

	client := provider.NewGeminiClient()
	rotator := failover.New(keys, store, log)
	memories := memory.New(store, rotator, client, cfg.MetaModelName, queue, log)
	orch := chat.New(store, rotator, client, memories, queue, cfg.ModelName, cfg.ImageModelName, log)

	app := ui.NewAppView(store, orch, memories, rotator, log)
	app.LoadHistory()

	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Error().Err(err).Msg("program exited with error")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log.Info().Msg("gemchat shutting down")
}
