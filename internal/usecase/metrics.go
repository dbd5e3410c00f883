package usecase

import "context"

// MetricsSummary represents aggregated color analysis insights.
type MetricsSummary struct {
	TotalRequests              int64            `json:"total_requests"`
	SuccessfulRequests         int64            `json:"successful_requests"`
	SuccessRate                float64          `json:"success_rate"`
	CachedRequests             int64            `json:"cached_requests"`
	CacheHitRate               float64          `json:"cache_hit_rate"`
	AverageProcessingLatencyMs float64          `json:"average_processing_latency_ms"`
	FailuresByKind             map[string]int64 `json:"failures_by_kind"`
}

// GetMetricsSummary aggregates analysis metrics from persisted logs.
func (uc *ColorUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		SuccessfulRequests:         aggregation.SuccessCount,
		CachedRequests:             aggregation.CachedCount,
		AverageProcessingLatencyMs: aggregation.AverageLatencyMs,
		FailuresByKind:             aggregation.FailuresByKind,
	}
	if summary.FailuresByKind == nil {
		summary.FailuresByKind = map[string]int64{}
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
		summary.CacheHitRate = float64(aggregation.CachedCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
