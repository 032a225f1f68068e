// Package metrics provides metrics recording and querying for curator
// operations. Recording is Prometheus-based; querying aggregates recorded
// series from a Prometheus server for the stats commands.
package metrics

import "time"

// Routing outcome labels for submissions.
const (
	OutcomePending            = "pending"
	OutcomeAutoApproved       = "auto_approved"
	OutcomeNeedsClarification = "needs_clarification"
)

// Resolution action labels.
const (
	ActionApprove   = "approve"
	ActionReject    = "reject"
	ActionAnswer    = "answer"
	ActionSupersede = "supersede"
)

// Cache lookup result labels.
const (
	LookupHit  = "hit"
	LookupMiss = "miss"
)

// Recorder defines the interface for recording curator operation metrics.
type Recorder interface {
	// ObserveSubmit records one submission and its routing outcome.
	ObserveSubmit(jobID, outcome string, duration time.Duration)

	// ObserveResolution records one review item resolution.
	ObserveResolution(jobID, action string)

	// IncCacheLookup counts a mapping cache lookup by result.
	IncCacheLookup(result string)

	// ObserveCompaction records one history compaction.
	ObserveCompaction(jobID string, entriesFolded int, tokensRemoved int64)

	// SetActiveTokens tracks a job's active working-memory size.
	SetActiveTokens(jobID string, tokens int64)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are
// disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveSubmit does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveSubmit(_, _ string, _ time.Duration) {}

// ObserveResolution does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveResolution(_, _ string) {}

// IncCacheLookup does nothing in the no-op recorder.
func (n *NoopRecorder) IncCacheLookup(_ string) {}

// ObserveCompaction does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveCompaction(_ string, _ int, _ int64) {}

// SetActiveTokens does nothing in the no-op recorder.
func (n *NoopRecorder) SetActiveTokens(_ string, _ int64) {}
