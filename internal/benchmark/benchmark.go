// Package benchmark load-tests the dispatcher and compute worker.
//
// Many concurrent callers send summarize requests for distinct notes and
// every reply is checked against the note it was meant for. Run with
// dispatch.ModeCorrelated every caller gets its own answer; with
// dispatch.ModeByResponseType concurrent requests of one type supersede or
// receive each other's results, which is what Compare makes visible.
package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/muchacho/personal-manager/internal/dispatch"
	"github.com/muchacho/personal-manager/internal/protocol"
	"github.com/muchacho/personal-manager/internal/worker"
)

// Config defines the parameters for a benchmark run.
type Config struct {
	// Callers is the number of concurrent goroutines sending requests.
	Callers int

	// RequestsPerCaller is how many requests each caller sends in sequence.
	RequestsPerCaller int

	// Sentences per generated note.
	Sentences int

	Mode dispatch.Mode

	// Timeout bounds the whole run.
	Timeout time.Duration
}

// DefaultConfig returns a benchmark configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Callers:           16,
		RequestsPerCaller: 25,
		Sentences:         12,
		Mode:              dispatch.ModeCorrelated,
		Timeout:           time.Minute,
	}
}

func (c Config) validate() error {
	if c.Callers <= 0 {
		return fmt.Errorf("callers must be positive, got %d", c.Callers)
	}
	if c.RequestsPerCaller <= 0 {
		return fmt.Errorf("requests per caller must be positive, got %d", c.RequestsPerCaller)
	}
	if c.Sentences <= 0 {
		return fmt.Errorf("sentences must be positive, got %d", c.Sentences)
	}
	return nil
}

// Outcomes counts how each request settled.
type Outcomes struct {
	// OK requests got the summary of their own note.
	OK int
	// Misrouted requests got a summary meant for another note.
	Misrouted int
	// Superseded requests were displaced by a newer request of the same type.
	Superseded int
	Failed     int
}

// Total returns the number of settled requests.
func (o Outcomes) Total() int {
	return o.OK + o.Misrouted + o.Superseded + o.Failed
}

// Result captures all metrics from a benchmark run.
type Result struct {
	Config Config

	Latency    LatencyMetrics
	Throughput ThroughputMetrics
	Resources  ResourceMetrics
	Outcomes   Outcomes

	TotalDuration time.Duration
	// Success is true when every request got its own answer.
	Success bool
}

// LatencyMetrics captures request latency statistics.
type LatencyMetrics struct {
	Min  time.Duration
	P50  time.Duration // Median
	Mean time.Duration
	P95  time.Duration
	P99  time.Duration
	Max  time.Duration

	// Sorted raw durations
	Durations []time.Duration `json:"-"`
}

// ThroughputMetrics captures requests-per-second metrics.
type ThroughputMetrics struct {
	RequestsPerSecond float64
	TotalRequests     int
}

// ResourceMetrics captures memory usage.
type ResourceMetrics struct {
	MemoryBeforeBytes uint64
	MemoryAfterBytes  uint64
	MemoryPeakBytes   uint64
	MemoryDeltaBytes  uint64
}

// Run starts a worker and dispatcher and drives them with cfg.Callers
// concurrent callers.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	quiet := log.New(io.Discard, "", 0)
	wcfg := worker.DefaultConfig()
	wcfg.Logger = quiet
	w := worker.NewWithConfig(wcfg)
	w.Start()
	defer w.Stop()

	dcfg := dispatch.DefaultConfig()
	dcfg.Mode = cfg.Mode
	dcfg.Logger = quiet
	d := dispatch.NewWithConfig(w, dcfg)
	defer d.Close()

	runtime.GC()
	before := GetMemoryStats()

	var (
		mu        sync.Mutex
		durations = make([]time.Duration, 0, cfg.Callers*cfg.RequestsPerCaller)
		outcomes  Outcomes
		wg        sync.WaitGroup
	)
	record := func(d time.Duration, classify func(*Outcomes)) {
		mu.Lock()
		durations = append(durations, d)
		classify(&outcomes)
		mu.Unlock()
	}

	start := time.Now()
	for c := 0; c < cfg.Callers; c++ {
		wg.Add(1)
		go func(caller int) {
			defer wg.Done()
			for i := 0; i < cfg.RequestsPerCaller; i++ {
				id := fmt.Sprintf("note-%d-%d", caller, i)
				req := protocol.SummarizeRequest{ID: id, Text: noteText(id, cfg.Sentences)}

				t0 := time.Now()
				resp, err := dispatch.Call[protocol.SummarizeResponse](ctx, d, protocol.Summarize, req)
				record(time.Since(t0), func(o *Outcomes) {
					switch {
					case errors.Is(err, dispatch.ErrSuperseded):
						o.Superseded++
					case err != nil:
						o.Failed++
					case resp.ID != id:
						o.Misrouted++
					default:
						o.OK++
					}
				})
			}
		}(c)
	}
	wg.Wait()
	total := time.Since(start)

	after := GetMemoryStats()
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("benchmark did not finish: %w", err)
	}

	result := &Result{
		Config:        cfg,
		Latency:       ComputeStats(durations),
		Resources:     CompareMemoryStats(before, after),
		Outcomes:      outcomes,
		TotalDuration: total,
		Throughput:    ThroughputMetrics{TotalRequests: len(durations)},
	}
	if total > 0 {
		result.Throughput.RequestsPerSecond = float64(len(durations)) / total.Seconds()
	}
	result.Success = outcomes.OK == outcomes.Total()
	return result, nil
}

// noteText builds a note whose first sentence names id, so the extractive
// summary of each note is distinct.
func noteText(id string, sentences int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Note %s tracks the weekly review and the budget. ", id)
	for i := 1; i < sentences; i++ {
		fmt.Fprintf(&b, "Line %d mentions the budget review for %s again. ", i, id)
	}
	return b.String()
}

// Comparison holds one run per dispatcher mode.
type Comparison struct {
	Correlated *Result
	ByType     *Result
}

// Compare runs cfg once in each dispatcher mode.
func Compare(ctx context.Context, cfg Config) (*Comparison, error) {
	cfg.Mode = dispatch.ModeCorrelated
	correlated, err := Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("correlated run failed: %w", err)
	}
	cfg.Mode = dispatch.ModeByResponseType
	byType, err := Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("by-type run failed: %w", err)
	}
	return &Comparison{Correlated: correlated, ByType: byType}, nil
}

// ComputeStats calculates statistics from raw durations.
func ComputeStats(durations []time.Duration) LatencyMetrics {
	if len(durations) == 0 {
		return LatencyMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyMetrics{
		Min:       sorted[0],
		P50:       sorted[len(sorted)*50/100],
		Mean:      sum / time.Duration(len(sorted)),
		P95:       sorted[len(sorted)*95/100],
		P99:       sorted[len(sorted)*99/100],
		Max:       sorted[len(sorted)-1],
		Durations: sorted,
	}
}

// GetMemoryStats returns current memory usage statistics.
func GetMemoryStats() ResourceMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return ResourceMetrics{
		MemoryBeforeBytes: m.Alloc,
		MemoryAfterBytes:  m.Alloc,
		MemoryPeakBytes:   m.Sys,
	}
}

// CompareMemoryStats computes the delta between before and after memory stats.
func CompareMemoryStats(before, after ResourceMetrics) ResourceMetrics {
	var delta uint64
	if after.MemoryAfterBytes > before.MemoryBeforeBytes {
		delta = after.MemoryAfterBytes - before.MemoryBeforeBytes
	}

	return ResourceMetrics{
		MemoryBeforeBytes: before.MemoryBeforeBytes,
		MemoryAfterBytes:  after.MemoryAfterBytes,
		MemoryPeakBytes:   after.MemoryPeakBytes,
		MemoryDeltaBytes:  delta,
	}
}

// FormatBytes formats bytes into a human-readable string.
func FormatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// FormatDuration formats a duration into a human-readable string.
func FormatDuration(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000.0)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000.0)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// PrintResult writes a formatted benchmark result.
func PrintResult(w io.Writer, result *Result) {
	fmt.Fprintf(w, "\n=== Dispatcher Benchmark (%s mode) ===\n\n", result.Config.Mode)

	fmt.Fprintf(w, "Configuration:\n")
	fmt.Fprintf(w, "  Concurrent Callers:  %d\n", result.Config.Callers)
	fmt.Fprintf(w, "  Requests per Caller: %d\n", result.Config.RequestsPerCaller)
	fmt.Fprintf(w, "  Sentences per Note:  %d\n", result.Config.Sentences)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Latency:\n")
	fmt.Fprintf(w, "  Min:       %s\n", FormatDuration(result.Latency.Min))
	fmt.Fprintf(w, "  P50:       %s\n", FormatDuration(result.Latency.P50))
	fmt.Fprintf(w, "  Mean:      %s\n", FormatDuration(result.Latency.Mean))
	fmt.Fprintf(w, "  P95:       %s\n", FormatDuration(result.Latency.P95))
	fmt.Fprintf(w, "  P99:       %s\n", FormatDuration(result.Latency.P99))
	fmt.Fprintf(w, "  Max:       %s\n", FormatDuration(result.Latency.Max))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Throughput:\n")
	fmt.Fprintf(w, "  Requests/sec:      %.2f\n", result.Throughput.RequestsPerSecond)
	fmt.Fprintf(w, "  Total Requests:    %d\n", result.Throughput.TotalRequests)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Resources:\n")
	fmt.Fprintf(w, "  Memory Before:     %s\n", FormatBytes(result.Resources.MemoryBeforeBytes))
	fmt.Fprintf(w, "  Memory After:      %s\n", FormatBytes(result.Resources.MemoryAfterBytes))
	fmt.Fprintf(w, "  Memory Peak:       %s\n", FormatBytes(result.Resources.MemoryPeakBytes))
	fmt.Fprintf(w, "  Memory Delta:      %s\n", FormatBytes(result.Resources.MemoryDeltaBytes))
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Outcomes:\n")
	fmt.Fprintf(w, "  Own answer:        %d\n", result.Outcomes.OK)
	fmt.Fprintf(w, "  Misrouted:         %d\n", result.Outcomes.Misrouted)
	fmt.Fprintf(w, "  Superseded:        %d\n", result.Outcomes.Superseded)
	fmt.Fprintf(w, "  Failed:            %d\n", result.Outcomes.Failed)
	fmt.Fprintf(w, "\n")

	fmt.Fprintf(w, "Overall:\n")
	fmt.Fprintf(w, "  Total Duration:    %s\n", FormatDuration(result.TotalDuration))
	fmt.Fprintf(w, "  Success:           %v\n", result.Success)
	fmt.Fprintf(w, "\n")
}

// PrintComparison writes both runs side by side.
func PrintComparison(w io.Writer, c *Comparison) {
	fmt.Fprintf(w, "\n=== Dispatcher Modes ===\n\n")
	fmt.Fprintf(w, "%-14s %14s %14s\n", "Metric", "correlated", "by-type")
	fmt.Fprintf(w, "%-14s %14s %14s\n", "P50", FormatDuration(c.Correlated.Latency.P50), FormatDuration(c.ByType.Latency.P50))
	fmt.Fprintf(w, "%-14s %14s %14s\n", "P95", FormatDuration(c.Correlated.Latency.P95), FormatDuration(c.ByType.Latency.P95))
	fmt.Fprintf(w, "%-14s %14.1f %14.1f\n", "Requests/sec", c.Correlated.Throughput.RequestsPerSecond, c.ByType.Throughput.RequestsPerSecond)
	fmt.Fprintf(w, "%-14s %14d %14d\n", "Own answer", c.Correlated.Outcomes.OK, c.ByType.Outcomes.OK)
	fmt.Fprintf(w, "%-14s %14d %14d\n", "Misrouted", c.Correlated.Outcomes.Misrouted, c.ByType.Outcomes.Misrouted)
	fmt.Fprintf(w, "%-14s %14d %14d\n", "Superseded", c.Correlated.Outcomes.Superseded, c.ByType.Outcomes.Superseded)
	fmt.Fprintf(w, "%-14s %14d %14d\n", "Failed", c.Correlated.Outcomes.Failed, c.ByType.Outcomes.Failed)
	fmt.Fprintf(w, "\n")
}
