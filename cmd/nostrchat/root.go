package main

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"nostrchat/internal/config"
	"nostrchat/internal/identity"
	"nostrchat/internal/pool"
)

var rootCmd = &cobra.Command{
	Use:           "nostrchat",
	Short:         "Encrypted chat over Nostr relays",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogger()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

// initLogger sets up the structured logger with JSON output on stderr.
// Log level is controlled by LOG_LEVEL env var (debug/info/warn/error).
func initLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

// session is the wired-up application state a command runs against.
type session struct {
	settings *config.Settings
	keys     *identity.Keys
	pool     *pool.RelayPool
}

// loadSession loads settings and the stored key. Commands that need a
// key fail here with a hint to run login or keygen first.
func loadSession(needKey bool) (*session, error) {
	settings := config.Load()

	s := &session{settings: settings, pool: pool.New()}
	if settings.Nsec != "" {
		keys, err := identity.FromNsec(settings.Nsec)
		if err != nil {
			return nil, err
		}
		s.keys = keys
	} else if needKey {
		return nil, errors.New("no key configured: run `nostrchat keygen` or `nostrchat login <nsec>` first")
	}
	return s, nil
}

func (s *session) close() {
	s.pool.Close()
}
