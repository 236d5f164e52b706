package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/trellis-io/trellis/internal/api"
	"github.com/trellis-io/trellis/internal/watcher"
)

// newServeCmd creates the serve command for the dashboard API
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and sync watcher",
		Long: `Start the trellis API server.

The server provides REST endpoints for task management plus a
websocket feed of committed mutations. Unless disabled, a filesystem
watcher runs alongside it and reconciles external edits to the task
files into the index as they happen.

Example:
  trellis serve                     # listen on the configured address
  trellis serve --addr :9000
  trellis serve --no-watch          # API only, no file watching`,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			noWatch, _ := cmd.Flags().GetBool("no-watch")

			eng, err := openEngine()
			if err != nil {
				return err
			}
			defer eng.close()

			if addr == "" {
				addr = eng.cfg.Server.Addr
			}

			srv := api.New(eng.mgr, eng.pub, &api.Config{
				Addr:   addr,
				Logger: cliLogger(),
			})

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Println("\nShutting down...")
				cancel()
			}()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.StartContext(ctx)
			})

			if eng.cfg.Watcher.Enabled && !noWatch {
				w, err := watcher.New(&watcher.Config{
					TasksRoot:  eng.cfg.TasksRoot,
					Reconciler: eng.mgr,
					Logger:     cliLogger(),
					DebounceMs: eng.cfg.Watcher.DebounceMs,
				})
				if err != nil {
					cancel()
					return fmt.Errorf("starting watcher: %w", err)
				}
				g.Go(func() error {
					return w.Start(ctx)
				})
				fmt.Println("Watching task files for external edits")
			}

			fmt.Printf("Serving on http://%s (Ctrl+C to stop)\n", addr)
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().String("addr", "", "listen address (default from config)")
	cmd.Flags().Bool("no-watch", false, "disable the file watcher")
	return cmd
}
