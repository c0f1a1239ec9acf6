package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sajjad-MoBe/MVCCStore/internal/api"
	"github.com/sajjad-MoBe/MVCCStore/internal/config"
	"github.com/sajjad-MoBe/MVCCStore/internal/executor"
	"github.com/sajjad-MoBe/MVCCStore/internal/mvcc"
	"github.com/sajjad-MoBe/MVCCStore/internal/shared"
	"github.com/sajjad-MoBe/MVCCStore/internal/wal"
	"github.com/sajjad-MoBe/MVCCStore/internal/workload"
)

var (
	serveConfigPath string
	serveAddr       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the engine with its admin server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "Path to a TOML config file")
	serveCmd.Flags().StringVarP(&serveAddr, "address", "a", "", "Override the admin server address")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.AdminAddr = serveAddr
	}

	logger := shared.NewLogger(shared.ParseLevel(cfg.LogLevel))

	opts := mvcc.Options{
		PartitionCount:        cfg.PartitionCount,
		LogicalPartitionCount: cfg.LogicalWorkers,
	}
	if cfg.ChangelogDir != "" {
		journal, err := wal.NewManager(cfg.ChangelogDir, wal.Config{MaxFileSize: cfg.ChangelogMaxSize})
		if err != nil {
			return err
		}
		defer journal.Close()
		opts.Journal = journal
	}

	db, executions := executor.NewBuilder().
		WithOptions(opts).
		WithTables(workload.Tables()...).
		Build()

	metrics := api.NewMetrics(nil)
	metrics.SetVersionTables(len(db.TableIDs()))

	stats := func() []api.WorkerStats {
		out := make([]api.WorkerStats, len(executions))
		for i, exec := range executions {
			out[i] = api.WorkerStats{
				Worker:    exec.WorkerID(),
				Commits:   exec.CommitCount(),
				Aborts:    exec.AbortCount(),
				StartTime: exec.StartTime(),
				EndTime:   exec.EndTime(),
			}
		}
		return out
	}

	srv := api.NewServer(cfg.AdminAddr, stats, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("admin server error: %v", err)
			cancel()
		}
	}()

	select {
	case sig := <-sigChan:
		logger.Info("received signal %v, shutting down", sig)
	case <-ctx.Done():
	}

	return srv.Shutdown(context.Background())
}
