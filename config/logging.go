package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// InitLogger opens the structured log in the data directory. The TUI
// owns the terminal, so every diagnostic goes to the file. Level
// defaults to info; GEMCHAT_DEBUG=1 enables debug events.
func InitLogger(dataDir string) (zerolog.Logger, error) {
	logPath := filepath.Join(dataDir, "gemchat.log")

	// 0600: log lines may quote conversation fragments
	f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to open log file: %w", err)
	}

	level := zerolog.InfoLevel
	if debug := os.Getenv("GEMCHAT_DEBUG"); debug == "true" || debug == "1" {
		level = zerolog.DebugLevel
	}

	return zerolog.New(f).Level(level).With().Timestamp().Logger(), nil
}
