package main

import (
	"context"
	"fmt"

	"curator/pkg/metrics"
	"curator/pkg/persistence"
)

func runStats(args []string) error {
	fs, workDir := newFlagSet("curator stats")
	jobID := fs.String("job", "", "Job ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job is required")
	}

	a, err := openApp(*workDir)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	stats, err := a.queue.Stats(ctx, *jobID)
	if err != nil {
		return err
	}

	fmt.Printf("Job %s\n", stats.JobID)
	fmt.Printf("  Items:               %d\n", stats.Total)
	fmt.Printf("    pending:             %d\n", stats.ByStatus[persistence.StatusPending])
	fmt.Printf("    needs clarification: %d\n", stats.ByStatus[persistence.StatusNeedsClarification])
	fmt.Printf("    approved:            %d\n", stats.ByStatus[persistence.StatusApproved])
	fmt.Printf("    rejected:            %d\n", stats.ByStatus[persistence.StatusRejected])
	fmt.Printf("  Auto-approved:       %d\n", stats.AutoApproved)
	fmt.Printf("  Open clarifications: %d\n", stats.OpenClarifications)

	mem, err := a.memory.Stats(ctx, *jobID)
	if err != nil {
		return err
	}
	fmt.Printf("  Memory tokens:       %d / %d\n", mem.ActiveTokens, mem.BudgetTokens)

	if a.cfg.Metrics.PrometheusURL == "" {
		return nil
	}
	return printClusterStats(ctx, a.cfg.Metrics.PrometheusURL, *jobID)
}

// printClusterStats adds cross-process aggregates from Prometheus. The local
// store only sees this workspace; the metrics backend sees every exporter.
func printClusterStats(ctx context.Context, prometheusURL, jobID string) error {
	qs, err := metrics.NewQueryService(prometheusURL)
	if err != nil {
		return err
	}
	jm, err := qs.GetJobMetrics(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to query Prometheus at %s: %w", prometheusURL, err)
	}
	hitRate, err := qs.GetCacheHitRate(ctx)
	if err != nil {
		return fmt.Errorf("failed to query cache hit rate: %w", err)
	}

	fmt.Printf("Cluster (via %s)\n", prometheusURL)
	fmt.Printf("  Submissions:         %d\n", jm.Submissions)
	fmt.Printf("  Auto-approved:       %d\n", jm.AutoApproved)
	fmt.Printf("  Resolutions:         %d\n", jm.Resolutions)
	fmt.Printf("  Compactions:         %d (%d tokens folded)\n", jm.Compactions, jm.CompactedTokens)
	fmt.Printf("  Cache hit rate:      %.1f%%\n", hitRate*100)
	return nil
}
