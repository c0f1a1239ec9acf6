package cmd

import (
	"context"
	"fmt"
	"sync"

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
	benchConfigPath string
	benchWorkers    int
	benchTxPer      int
	benchVerbose    bool
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Run the TPC-C-style benchmark against the engine",
	RunE:  runBench,
}

func init() {
	benchCmd.Flags().StringVarP(&benchConfigPath, "config", "c", "", "Path to a TOML config file")
	benchCmd.Flags().IntVarP(&benchWorkers, "workers", "w", 0, "Override the number of logical workers")
	benchCmd.Flags().IntVarP(&benchTxPer, "transactions", "n", 0, "Override transactions per worker")
	benchCmd.Flags().BoolVarP(&benchVerbose, "verbose", "v", false, "Enable debug logging")
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(benchConfigPath)
	if err != nil {
		return err
	}
	if benchWorkers > 0 {
		cfg.LogicalWorkers = benchWorkers
	}
	if benchTxPer > 0 {
		cfg.TxPerWorker = benchTxPer
	}

	logger := shared.NewLogger(shared.ParseLevel(cfg.LogLevel))
	if benchVerbose {
		logger.SetLevel(shared.DEBUG)
	}

	opts := mvcc.Options{
		PartitionCount:        cfg.PartitionCount,
		LogicalPartitionCount: cfg.LogicalWorkers,
	}

	var journal *wal.Manager
	if cfg.ChangelogDir != "" {
		journal, err = wal.NewManager(cfg.ChangelogDir, wal.Config{MaxFileSize: cfg.ChangelogMaxSize})
		if err != nil {
			return err
		}
		defer journal.Close()
		opts.Journal = journal
	}

	var tracer *api.Tracer
	if cfg.TracingEnabled {
		tracer, err = api.NewTracer("mvccstore-bench", cfg.JaegerEndpoint)
		if err != nil {
			return err
		}
		defer tracer.Shutdown(context.Background())
	}

	db, executions := executor.NewBuilder().
		WithOptions(opts).
		WithTables(workload.Tables()...).
		Build()

	metrics := api.NewMetrics(nil)
	metrics.SetVersionTables(len(db.TableIDs()))

	wlCfg := workload.TPCCConfig{
		Warehouses:     cfg.Warehouses,
		DistrictsPerWh: cfg.DistrictsPerWh,
		CustomersPerD:  cfg.CustomersPerD,
		Items:          cfg.Items,
		NewOrderPct:    cfg.NewOrderPct,
		TxPerWorker:    cfg.TxPerWorker,
		Seed:           cfg.Seed,
	}

	logger.Info("loading %d warehouses", cfg.Warehouses)
	if err := workload.Load(executions[0], wlCfg); err != nil {
		return fmt.Errorf("load failed: %v", err)
	}

	ctx := context.Background()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	workers := make([]*workload.Worker, len(executions))
	for i, exec := range executions {
		perWorker := wlCfg
		perWorker.Seed = cfg.Seed + int64(i)
		workers[i] = workload.NewWorker(exec, workload.NewTPCCFactory(perWorker), logger, metrics, tracer)
	}

	logger.Info("starting %d workers", len(workers))
	var wg sync.WaitGroup
	for _, w := range workers {
		wg.Add(1)
		go func(w *workload.Worker) {
			defer wg.Done()
			w.Run(ctx)
		}(w)
	}
	wg.Wait()

	fmt.Println(workload.BuildReport(workers))
	return nil
}
