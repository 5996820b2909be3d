package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"epoch_vault/internal/app"

	"github.com/spf13/cobra"

	_ "net/http/pprof" // For pprof profiling
)

var pprofAddr string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the vault daemon",
	Long: `Start the sequencer, the HTTP gateway, the bridge watcher and the keeper.

State is rebuilt from the latest snapshot and the journal on every start.`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&pprofAddr, "pprof", "", "serve pprof on this address (e.g. localhost:6060)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := app.NewBootstrap(configPath)
	if err := b.Initialize(ctx); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		b.Close()
		return err
	}
	defer b.Close()

	if pprofAddr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", pprofAddr))
			if err := http.ListenAndServe(pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	slog.InfoContext(ctx, "Vault operational. Press Ctrl+C to exit.")
	if err := b.Run(ctx); err != nil {
		return err
	}
	slog.Info("Shutting down gracefully...")
	return nil
}
