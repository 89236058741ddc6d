package main

import (
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/SVOIcom/everscale-connect-backend/pkg/rpc"
)

type outcome string

const (
	outcomeOK        outcome = "ok"
	outcomeTVM       outcome = "tvm_exception"
	outcomeTransient outcome = "transient"
	outcomeError     outcome = "error"
)

// classify buckets a proxy client error. Contract exceptions are valid
// answers and do not fail the run.
func classify(err error) outcome {
	if err == nil {
		return outcomeOK
	}
	var tvm *rpc.TvmException
	if errors.As(err, &tvm) {
		return outcomeTVM
	}
	if rpc.IsTransient(err) {
		return outcomeTransient
	}
	return outcomeError
}

type stats struct {
	mu        sync.Mutex
	latencies []time.Duration
	outcomes  map[outcome]int64
}

func newStats() *stats {
	return &stats{outcomes: make(map[outcome]int64)}
}

func (s *stats) record(d time.Duration, o outcome) {
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.outcomes[o]++
	s.mu.Unlock()
}

type report struct {
	Duration      time.Duration
	Requests      int64
	Outcomes      map[outcome]int64
	P50, P95, P99 time.Duration
}

func (s *stats) report(elapsed time.Duration) report {
	s.mu.Lock()
	lat := slices.Clone(s.latencies)
	outcomes := make(map[outcome]int64, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}
	s.mu.Unlock()

	slices.Sort(lat)
	return report{
		Duration: elapsed,
		Requests: int64(len(lat)),
		Outcomes: outcomes,
		P50:      percentile(lat, 50),
		P95:      percentile(lat, 95),
		P99:      percentile(lat, 99),
	}
}

// Failed reports whether any request ended in a transport or proxy error.
func (r report) Failed() bool {
	return r.Outcomes[outcomeTransient]+r.Outcomes[outcomeError] > 0
}

func (r report) errorRate() float64 {
	if r.Requests == 0 {
		return 0
	}
	return float64(r.Outcomes[outcomeTransient]+r.Outcomes[outcomeError]) / float64(r.Requests) * 100
}

func (r report) print(w io.Writer, workers int) {
	perSec := 0.0
	if r.Duration > 0 {
		perSec = float64(r.Requests) / r.Duration.Seconds()
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "       LOAD TEST RESULTS")
	fmt.Fprintln(w, "========================================")
	fmt.Fprintf(w, "Duration:       %s\n", r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Workers:        %d\n", workers)
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintf(w, "Requests:       %d\n", r.Requests)
	fmt.Fprintf(w, "Requests/sec:   %.2f\n", perSec)
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, "Latency:")
	fmt.Fprintf(w, "  p50:          %s\n", formatDuration(r.P50))
	fmt.Fprintf(w, "  p95:          %s\n", formatDuration(r.P95))
	fmt.Fprintf(w, "  p99:          %s\n", formatDuration(r.P99))
	fmt.Fprintln(w, "----------------------------------------")
	fmt.Fprintln(w, "Outcomes:")
	for _, o := range []outcome{outcomeOK, outcomeTVM, outcomeTransient, outcomeError} {
		fmt.Fprintf(w, "  %-14s%d\n", string(o)+":", r.Outcomes[o])
	}
	fmt.Fprintf(w, "  error rate:   %.2f%%\n", r.errorRate())
	fmt.Fprintln(w, "========================================")
}

// percentile returns the nearest-rank value of an ascending slice.
func percentile(sorted []time.Duration, pct float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(pct/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%.1fus", float64(d.Nanoseconds())/1e3)
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	default:
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
}
