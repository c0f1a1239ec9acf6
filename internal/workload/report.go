package workload

import (
	"fmt"
	"strings"
	"time"
)

// Report aggregates the outcome of one benchmark run.
type Report struct {
	Workers  int
	Commits  int64
	Aborts   int64
	Duration time.Duration
}

// BuildReport folds the workers' counters into a run report. The duration is
// the widest start-to-end window across workers.
func BuildReport(workers []*Worker) Report {
	r := Report{Workers: len(workers)}
	var earliest, latest time.Time
	for _, w := range workers {
		s := w.Stats()
		r.Commits += s.Commits
		r.Aborts += s.Aborts
		if earliest.IsZero() || s.StartTime.Before(earliest) {
			earliest = s.StartTime
		}
		if s.EndTime.After(latest) {
			latest = s.EndTime
		}
	}
	if !earliest.IsZero() && latest.After(earliest) {
		r.Duration = latest.Sub(earliest)
	}
	return r
}

// Throughput returns committed transactions per second.
func (r Report) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.Commits) / r.Duration.Seconds()
}

// AbortRate returns the fraction of transactions that aborted.
func (r Report) AbortRate() float64 {
	total := r.Commits + r.Aborts
	if total == 0 {
		return 0
	}
	return float64(r.Aborts) / float64(total)
}

// String renders the report for the CLI.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workers:    %d\n", r.Workers)
	fmt.Fprintf(&b, "committed:  %d\n", r.Commits)
	fmt.Fprintf(&b, "aborted:    %d (%.1f%%)\n", r.Aborts, r.AbortRate()*100)
	fmt.Fprintf(&b, "duration:   %v\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(&b, "throughput: %.0f tx/s", r.Throughput())
	return b.String()
}
