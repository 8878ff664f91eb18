package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/voidlock/squire/internal/config"
	"github.com/voidlock/squire/internal/store"
)

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect persisted conversation sessions",
	}

	cmd.AddCommand(newSessionsListCmd())
	cmd.AddCommand(newSessionsClearCmd())
	return cmd
}

// openSessionStore opens the persistent store the serve command uses. Only
// meaningful when session.store is sqlite; the in-memory store has nothing
// to inspect between runs.
func openSessionStore() (*store.SQLiteSessionStore, *store.DB, error) {
	cfg, err := config.Load(paths.Config)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Session.Store != "sqlite" {
		return nil, nil, fmt.Errorf("session.store is %q — only the sqlite store persists sessions", cfg.Session.Store)
	}
	db, err := store.Open(filepath.Join(paths.Data, "squire.db"), log)
	if err != nil {
		return nil, nil, err
	}
	return store.NewSessionStore(db, log), db, nil
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions and their turn counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, db, err := openSessionStore()
			if err != nil {
				return err
			}
			defer db.Close()

			snap := sessions.Snapshot()
			if len(snap) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, s := range snap {
				resumable := "fresh"
				if s.Handle != "" {
					resumable = "resumable"
				}
				fmt.Printf("%-40s turns=%-3d %s  last active %s\n",
					s.Key.String(), s.TurnCount, resumable,
					s.LastActivity.Format(time.DateTime))
			}
			return nil
		},
	}
}

func newSessionsClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Evict all idle sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, db, err := openSessionStore()
			if err != nil {
				return err
			}
			defer db.Close()

			evicted := 0
			for _, s := range sessions.Snapshot() {
				if sessions.Evict(s.Key) {
					evicted++
				}
			}
			fmt.Printf("evicted %d session(s)\n", evicted)
			return nil
		},
	}
}
