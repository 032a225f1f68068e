package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// JobMetrics represents aggregated metrics for one job.
type JobMetrics struct {
	JobID           string `json:"job_id"`
	Submissions     int64  `json:"submissions"`
	AutoApproved    int64  `json:"auto_approved"`
	Resolutions     int64  `json:"resolutions"`
	Compactions     int64  `json:"compactions"`
	CompactedTokens int64  `json:"compacted_tokens"`
}

// QueryService provides methods to query recorded curator metrics from
// Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// GetJobMetrics retrieves aggregated submission, resolution, and compaction
// metrics for one job across all recorded series.
func (q *QueryService) GetJobMetrics(ctx context.Context, jobID string) (*JobMetrics, error) {
	metrics := &JobMetrics{
		JobID: jobID,
	}

	submissionsQuery := fmt.Sprintf(`sum(curator_review_items_total{job_id=%q})`, jobID)
	submissions, err := q.queryScalar(ctx, submissionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	metrics.Submissions = int64(submissions)

	autoQuery := fmt.Sprintf(`sum(curator_review_items_total{job_id=%q, outcome=%q})`, jobID, OutcomeAutoApproved)
	autoApproved, err := q.queryScalar(ctx, autoQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query auto approvals: %w", err)
	}
	metrics.AutoApproved = int64(autoApproved)

	resolutionsQuery := fmt.Sprintf(`sum(curator_review_resolutions_total{job_id=%q})`, jobID)
	resolutions, err := q.queryScalar(ctx, resolutionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolutions: %w", err)
	}
	metrics.Resolutions = int64(resolutions)

	compactionsQuery := fmt.Sprintf(`sum(curator_compactions_total{job_id=%q})`, jobID)
	compactions, err := q.queryScalar(ctx, compactionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query compactions: %w", err)
	}
	metrics.Compactions = int64(compactions)

	tokensQuery := fmt.Sprintf(`sum(curator_compacted_tokens_total{job_id=%q})`, jobID)
	tokens, err := q.queryScalar(ctx, tokensQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query compacted tokens: %w", err)
	}
	metrics.CompactedTokens = int64(tokens)

	return metrics, nil
}

// GetCacheHitRate returns the fraction of cache lookups that hit, across all
// jobs. Returns 0 when nothing has been recorded yet.
func (q *QueryService) GetCacheHitRate(ctx context.Context) (float64, error) {
	hits, err := q.queryScalar(ctx, fmt.Sprintf(`sum(curator_cache_lookups_total{result=%q})`, LookupHit))
	if err != nil {
		return 0, fmt.Errorf("failed to query cache hits: %w", err)
	}

	total, err := q.queryScalar(ctx, `sum(curator_cache_lookups_total)`)
	if err != nil {
		return 0, fmt.Errorf("failed to query cache lookups: %w", err)
	}
	if total == 0 {
		return 0, nil
	}

	return hits / total, nil
}

// queryScalar runs an instant query and returns the first vector sample,
// or 0 when the query matched no series.
func (q *QueryService) queryScalar(ctx context.Context, query string) (float64, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return 0, err
	}

	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value), nil
	}

	return 0, nil
}
