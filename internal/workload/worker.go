package workload

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sajjad-MoBe/MVCCStore/internal/api"
	"github.com/sajjad-MoBe/MVCCStore/internal/executor"
	"github.com/sajjad-MoBe/MVCCStore/internal/shared"
)

// Worker drives one execution handle against a parameter stream. Each worker
// owns its execution and factory; only the counters are read concurrently.
type Worker struct {
	exec    *executor.Execution
	factory ParamFactory
	logger  *shared.Logger
	metrics *api.Metrics
	tracer  *api.Tracer
}

// NewWorker creates a worker. Metrics and tracer may be nil.
func NewWorker(exec *executor.Execution, factory ParamFactory, logger *shared.Logger, metrics *api.Metrics, tracer *api.Tracer) *Worker {
	if logger == nil {
		logger = shared.DefaultLogger
	}
	return &Worker{
		exec:    exec,
		factory: factory,
		logger:  logger.WithWorker(exec.WorkerID()),
		metrics: metrics,
		tracer:  tracer,
	}
}

// Execution returns the worker's execution handle.
func (w *Worker) Execution() *executor.Execution {
	return w.exec
}

// Run consumes the parameter stream until it is exhausted or the context is
// canceled.
func (w *Worker) Run(ctx context.Context) {
	w.exec.MarkStart()
	defer w.exec.MarkEnd()

	label := strconv.Itoa(w.exec.WorkerID())
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		param, ok := w.factory.Next()
		if !ok {
			return
		}

		start := time.Now()
		status := w.runOne(ctx, param)

		if w.metrics != nil {
			elapsed := time.Since(start).Seconds()
			if status == executor.TxResultCommitted {
				w.metrics.ObserveCommit(label, elapsed)
			} else {
				w.metrics.ObserveAbort(label, elapsed)
			}
		}
	}
}

// runOne executes one transaction parameter.
func (w *Worker) runOne(ctx context.Context, param TxParam) executor.TxFinalStatus {
	w.exec.BeginTransaction()

	status := executor.TxResultAborted
	if w.tracer != nil {
		_, span := w.tracer.StartTransaction(ctx, w.exec.WorkerID())
		defer func() {
			w.tracer.EndTransaction(span, w.exec.CurrentTxID(), status.String())
		}()
	}

	for _, op := range param.Ops {
		var err error
		switch op.Kind {
		case OpRead:
			_, _, err = w.exec.Read(op.TableID, op.Key)
		case OpWrite:
			err = w.exec.Write(op.TableID, op.Key, op.Value)
		case OpInsert:
			err = w.exec.Insert(op.TableID, op.Key, op.Value)
		case OpDelete:
			err = w.exec.Delete(op.TableID, op.Key)
		}
		if err != nil {
			w.logger.WithTx(w.exec.CurrentTxID()).Debug(
				"%s op on %s/%s failed: %v", param.Name, op.TableID, op.Key, err)
			status = w.exec.Abort()
			return status
		}
	}
	status = w.exec.Commit()
	return status
}

// Stats snapshots the worker's counters.
func (w *Worker) Stats() api.WorkerStats {
	return api.WorkerStats{
		Worker:    w.exec.WorkerID(),
		Commits:   w.exec.CommitCount(),
		Aborts:    w.exec.AbortCount(),
		StartTime: w.exec.StartTime(),
		EndTime:   w.exec.EndTime(),
	}
}

// Load populates the benchmark tables with initial records, one committed
// transaction per batch of keys.
func Load(exec *executor.Execution, cfg TPCCConfig) error {
	cfg = cfg.withDefaults()

	type seed struct {
		table, key string
		value      []byte
	}
	var seeds []seed
	for wh := 0; wh < cfg.Warehouses; wh++ {
		seeds = append(seeds, seed{TableWarehouse, warehouseKey(wh), []byte("ytd=0")})
		for d := 0; d < cfg.DistrictsPerWh; d++ {
			seeds = append(seeds, seed{TableDistrict, districtKey(wh, d), []byte("next_o_id=1")})
			for c := 0; c < cfg.CustomersPerD; c++ {
				seeds = append(seeds, seed{TableCustomer, customerKey(wh, d, c), []byte("balance=0")})
			}
		}
		for item := 0; item < cfg.Items; item++ {
			seeds = append(seeds, seed{TableStock, stockKey(wh, item), []byte("qty=100")})
		}
	}

	const batch = 64
	for i := 0; i < len(seeds); i += batch {
		exec.BeginTransaction()
		end := i + batch
		if end > len(seeds) {
			end = len(seeds)
		}
		for _, s := range seeds[i:end] {
			if err := exec.Insert(s.table, s.key, s.value); err != nil {
				return err
			}
		}
		if status := exec.Commit(); status != executor.TxResultCommitted {
			return fmt.Errorf("load batch %d aborted", i/batch)
		}
	}
	return nil
}
