package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/teilomillet/knowledge"
	"github.com/teilomillet/knowledge/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the web UI on http://localhost:8080",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	assistant, closeIndex, err := newAssistant(cfg)
	if err != nil {
		return err
	}
	defer closeIndex()

	go pruneSessions(assistant.Sessions(), time.Hour)

	server := web.NewServer(assistant, web.WithExitFunc(func(code int) {
		closeIndex()
		os.Exit(code)
	}))
	return server.Serve()
}

// pruneSessions drops sessions of browsers that went away without ending
// them.
func pruneSessions(store *knowledge.SessionStore, maxIdle time.Duration) {
	ticker := time.NewTicker(maxIdle / 4)
	defer ticker.Stop()
	for range ticker.C {
		if n := store.Prune(maxIdle); n > 0 {
			knowledge.Debug("Pruned idle sessions", "count", n)
		}
	}
}
