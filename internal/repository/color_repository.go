package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/facetone/internal/logging"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = gorm.ErrRecordNotFound

// ColorAnalysisLog represents one persisted color analysis request.
type ColorAnalysisLog struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RequestID string    `gorm:"column:request_id;uniqueIndex;size:64" json:"request_id"`
	UserID    string    `gorm:"column:user_id;size:64;index" json:"user_id"`
	SHA1Hash  string    `gorm:"column:sha1_hash;size:40;index" json:"sha1_hash"`
	Hair      string    `gorm:"column:hair;size:7" json:"hair,omitempty"`
	Skin      string    `gorm:"column:skin;size:7" json:"skin,omitempty"`
	Lips      string    `gorm:"column:lips;size:7" json:"lips,omitempty"`
	ErrorKind string    `gorm:"column:error_kind;size:32" json:"error_kind,omitempty"`
	Cached    bool      `gorm:"column:cached" json:"cached"`
	LatencyMs int64     `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName overrides the default table name.
func (ColorAnalysisLog) TableName() string {
	return "color_analysis_logs"
}

// Succeeded reports whether the analysis produced colors.
func (l *ColorAnalysisLog) Succeeded() bool {
	return l.ErrorKind == ""
}

// MetricsAggregation is the raw roll-up of all stored analyses.
type MetricsAggregation struct {
	TotalCount       int64
	SuccessCount     int64
	CachedCount      int64
	AverageLatencyMs float64
	FailuresByKind   map[string]int64
}

// ColorRepository provides persistence APIs for color analysis logs.
type ColorRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewColorRepository creates a new repository instance.
func NewColorRepository(db *gorm.DB, logger *zap.Logger) *ColorRepository {
	return &ColorRepository{
		db:             db,
		logger:         logger.Named("color_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *ColorRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&ColorAnalysisLog{})
	})
}

// SaveLog persists an analysis log entry.
func (r *ColorRepository) SaveLog(ctx context.Context, log *ColorAnalysisLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndUser retrieves an analysis log matching the request and owner.
func (r *ColorRepository) FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*ColorAnalysisLog, error) {
	var log ColorAnalysisLog
	err := r.executeWithRetry(ctx, "repository.find_by_request", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ? AND user_id = ?", requestID, userID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// FindDuplicatesByHash lists the user's other analyses of byte-identical uploads,
// oldest first.
func (r *ColorRepository) FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*ColorAnalysisLog, error) {
	var logs []*ColorAnalysisLog
	err := r.executeWithRetry(ctx, "repository.find_duplicates", excludeRequestID, func() error {
		return r.db.WithContext(ctx).
			Where("user_id = ? AND sha1_hash = ? AND request_id <> ?", userID, hash, excludeRequestID).
			Order("created_at ASC").
			Find(&logs).Error
	})
	if err != nil {
		return nil, err
	}
	return logs, nil
}

// AggregateMetrics rolls up outcome counts and latency across all logs.
func (r *ColorRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var totals struct {
		TotalCount       int64
		SuccessCount     int64
		CachedCount      int64
		AverageLatencyMs float64
	}
	var kinds []struct {
		ErrorKind string
		Count     int64
	}

	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		db := r.db.WithContext(ctx).Model(&ColorAnalysisLog{})
		if err := db.Select(
			"COUNT(*) AS total_count, " +
				"COALESCE(SUM(CASE WHEN error_kind = '' THEN 1 ELSE 0 END), 0) AS success_count, " +
				"COALESCE(SUM(CASE WHEN cached THEN 1 ELSE 0 END), 0) AS cached_count, " +
				"COALESCE(AVG(latency_ms), 0) AS average_latency_ms",
		).Scan(&totals).Error; err != nil {
			return err
		}
		kinds = kinds[:0]
		return r.db.WithContext(ctx).Model(&ColorAnalysisLog{}).
			Select("error_kind, COUNT(*) AS count").
			Where("error_kind <> ''").
			Group("error_kind").
			Scan(&kinds).Error
	})
	if err != nil {
		return nil, err
	}

	agg := &MetricsAggregation{
		TotalCount:       totals.TotalCount,
		SuccessCount:     totals.SuccessCount,
		CachedCount:      totals.CachedCount,
		AverageLatencyMs: totals.AverageLatencyMs,
		FailuresByKind:   make(map[string]int64, len(kinds)),
	}
	for _, k := range kinds {
		agg.FailuresByKind[k.ErrorKind] = k.Count
	}
	return agg, nil
}

// executeWithRetry retries fn on transient errors with capped exponential backoff.
// Failures come back as *logging.OperationError.
func (r *ColorRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	attempts := r.retryAttempts
	if attempts < 1 {
		attempts = 1
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}
		if errors.Is(err, ErrNotFound) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !isTransientError(err) || attempt == attempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}
		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var temporary interface{ Temporary() bool }
	return errors.As(err, &temporary) && temporary.Temporary()
}
