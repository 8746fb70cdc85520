package benchmark

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/muchacho/personal-manager/internal/dispatch"
)

func TestComputeStats(t *testing.T) {
	var durations []time.Duration
	for i := 100; i >= 1; i-- {
		durations = append(durations, time.Duration(i)*time.Millisecond)
	}

	stats := ComputeStats(durations)
	if stats.Min != time.Millisecond {
		t.Errorf("Min = %v, want 1ms", stats.Min)
	}
	if stats.Max != 100*time.Millisecond {
		t.Errorf("Max = %v, want 100ms", stats.Max)
	}
	if stats.P50 != 51*time.Millisecond {
		t.Errorf("P50 = %v, want 51ms", stats.P50)
	}
	if stats.P95 != 96*time.Millisecond {
		t.Errorf("P95 = %v, want 96ms", stats.P95)
	}
	if stats.Mean != 50500*time.Microsecond {
		t.Errorf("Mean = %v, want 50.5ms", stats.Mean)
	}
	if durations[0] != 100*time.Millisecond {
		t.Error("ComputeStats sorted the caller's slice")
	}
}

func TestComputeStatsEmpty(t *testing.T) {
	if stats := ComputeStats(nil); stats.Max != 0 || stats.Durations != nil {
		t.Errorf("expected zero metrics, got %+v", stats)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Nanosecond, "500ns"},
		{1500 * time.Nanosecond, "1.50µs"},
		{2500 * time.Microsecond, "2.50ms"},
		{1500 * time.Millisecond, "1.50s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Callers = 0
	if _, err := Run(context.Background(), cfg); err == nil {
		t.Fatal("expected an error for zero callers")
	}
}

func TestRunCorrelatedEveryCallerGetsItsOwnAnswer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Callers = 8
	cfg.RequestsPerCaller = 10

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Outcomes.OK != 80 {
		t.Errorf("OK = %d, want 80 (outcomes %+v)", result.Outcomes.OK, result.Outcomes)
	}
	if !result.Success {
		t.Error("expected success in correlated mode")
	}
	if result.Throughput.TotalRequests != 80 {
		t.Errorf("TotalRequests = %d, want 80", result.Throughput.TotalRequests)
	}
}

func TestRunByTypeSettlesEveryRequest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Callers = 8
	cfg.RequestsPerCaller = 10
	cfg.Mode = dispatch.ModeByResponseType

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := result.Outcomes.Total(); got != 80 {
		t.Errorf("settled %d requests, want 80", got)
	}
	hazards := result.Outcomes.Misrouted + result.Outcomes.Superseded
	if result.Success != (hazards == 0 && result.Outcomes.Failed == 0) {
		t.Errorf("Success = %v with outcomes %+v", result.Success, result.Outcomes)
	}
}

func TestRunSingleCallerByTypeIsSafe(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Callers = 1
	cfg.RequestsPerCaller = 5
	cfg.Mode = dispatch.ModeByResponseType

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !result.Success {
		t.Errorf("sequential requests should not collide: %+v", result.Outcomes)
	}
}

func TestPrintComparison(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Callers = 2
	cfg.RequestsPerCaller = 3

	c, err := Compare(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Compare failed: %v", err)
	}
	if c.Correlated.Config.Mode != dispatch.ModeCorrelated || c.ByType.Config.Mode != dispatch.ModeByResponseType {
		t.Fatalf("modes = %v, %v", c.Correlated.Config.Mode, c.ByType.Config.Mode)
	}

	var buf bytes.Buffer
	PrintComparison(&buf, c)
	PrintResult(&buf, c.Correlated)
	out := buf.String()
	for _, want := range []string{"correlated", "by-type", "Misrouted", "Own answer:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q", want)
		}
	}
}
