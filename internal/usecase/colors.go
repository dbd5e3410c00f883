package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/facetone/internal/analysis"
	"github.com/example/facetone/internal/logging"
	"github.com/example/facetone/internal/repository"
)

// ColorRepository defines the persistence operations needed by the use case.
type ColorRepository interface {
	SaveLog(ctx context.Context, log *repository.ColorAnalysisLog) error
	FindByRequestIDAndUser(ctx context.Context, requestID, userID string) (*repository.ColorAnalysisLog, error)
	FindDuplicatesByHash(ctx context.Context, userID, hash, excludeRequestID string) ([]*repository.ColorAnalysisLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// ImageAnalyzer runs the color pipeline on raw upload bytes.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, raw []byte) (*analysis.Result, error)
}

// Outcome is the result of one AnalyzeColors call.
type Outcome struct {
	RequestID string
	Colors    analysis.Colors
	Cached    bool
}

// DuplicateReport represents earlier analyses of the same upload.
type DuplicateReport struct {
	Request    *repository.ColorAnalysisLog
	Duplicates []*repository.ColorAnalysisLog
}

// ColorUseCase encapsulates business logic for the color analysis flow.
type ColorUseCase struct {
	repo           ColorRepository
	cache          Cache
	analyzer       ImageAnalyzer
	logger         *zap.Logger
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	now            func() time.Time
}

// NewColorUseCase constructs a new use case instance.
func NewColorUseCase(repo ColorRepository, cache Cache, analyzer ImageAnalyzer, cacheTTL time.Duration, logger *zap.Logger) *ColorUseCase {
	return &ColorUseCase{
		repo:           repo,
		cache:          cache,
		analyzer:       analyzer,
		logger:         logger.Named("color_usecase"),
		cacheTTL:       cacheTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
		now:            time.Now,
	}
}

func colorsKey(hash string) string {
	return "colors:" + hash
}

// AnalyzeColors analyzes an upload, reusing cached colors for byte-identical
// images. Analysis failures come back as *analysis.Error alongside an Outcome
// carrying the request id; every analysis, failed or not, is persisted.
func (uc *ColorUseCase) AnalyzeColors(ctx context.Context, userID string, raw []byte) (*Outcome, error) {
	started := uc.now()
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.analyze_colors", requestID)

	sum := sha1.Sum(raw)
	hash := hex.EncodeToString(sum[:])
	outcome := &Outcome{RequestID: requestID}

	var analysisErr error
	if colors, ok := uc.cachedColors(ctx, requestID, hash); ok {
		outcome.Colors = colors
		outcome.Cached = true
	} else {
		res, err := uc.analyzer.AnalyzeImage(ctx, raw)
		if err != nil {
			if analysis.KindOf(err) == "" {
				wrapped := logging.NewOperationError("usecase.analyze_image", requestID, err)
				opLogger.Error("analysis aborted", zap.Error(wrapped))
				return nil, wrapped
			}
			analysisErr = err
		} else {
			outcome.Colors = res.Colors
		}
	}

	log := &repository.ColorAnalysisLog{
		RequestID: requestID,
		UserID:    userID,
		SHA1Hash:  hash,
		Hair:      outcome.Colors.Hair,
		Skin:      outcome.Colors.Skin,
		Lips:      outcome.Colors.Lips,
		ErrorKind: string(analysis.KindOf(analysisErr)),
		Cached:    outcome.Cached,
		LatencyMs: uc.now().Sub(started).Milliseconds(),
		CreatedAt: started.UTC(),
	}
	if err := uc.repo.SaveLog(ctx, log); err != nil {
		wrapped := logging.NewOperationError("usecase.save_log", requestID, err)
		opLogger.Error("failed to persist analysis log", zap.Error(wrapped))
		return nil, wrapped
	}

	if analysisErr != nil {
		opLogger.Info("analysis failed", zap.Error(analysisErr))
		return outcome, analysisErr
	}

	if !outcome.Cached {
		uc.storeColors(ctx, requestID, hash, outcome.Colors)
	}
	opLogger.Info("analysis completed",
		zap.Bool("cached", outcome.Cached),
		zap.Int64("latency_ms", log.LatencyMs),
	)
	return outcome, nil
}

func (uc *ColorUseCase) cachedColors(ctx context.Context, requestID, hash string) (analysis.Colors, bool) {
	var colors analysis.Colors
	opLogger := logging.WithOperation(uc.logger, "usecase.cache_lookup", requestID)

	cached, err := uc.withRedisGet(ctx, requestID, "cache.get.colors", colorsKey(hash))
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return colors, false
	}
	if err := json.Unmarshal([]byte(cached), &colors); err != nil {
		opLogger.Warn("failed to decode cached colors", zap.Error(err))
		return colors, false
	}
	return colors, true
}

// storeColors is best-effort; a failed write only costs a future re-analysis.
func (uc *ColorUseCase) storeColors(ctx context.Context, requestID, hash string, colors analysis.Colors) {
	serialized, err := json.Marshal(colors)
	if err != nil {
		return
	}
	if err := uc.withRedisRetry(ctx, requestID, "cache.set.colors", func() error {
		return uc.cache.Set(ctx, colorsKey(hash), string(serialized), uc.cacheTTL)
	}); err != nil {
		logging.WithOperation(uc.logger, "usecase.cache_store", requestID).Warn("failed to cache colors", zap.Error(err))
	}
}

// GetResult loads a stored analysis owned by userID.
func (uc *ColorUseCase) GetResult(ctx context.Context, userID, requestID string) (*repository.ColorAnalysisLog, error) {
	return uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
}

// GetDuplicateReport lists the user's other analyses of the same upload bytes.
func (uc *ColorUseCase) GetDuplicateReport(ctx context.Context, userID, requestID string) (*DuplicateReport, error) {
	log, err := uc.repo.FindByRequestIDAndUser(ctx, requestID, userID)
	if err != nil {
		return nil, err
	}

	duplicates, err := uc.repo.FindDuplicatesByHash(ctx, userID, log.SHA1Hash, log.RequestID)
	if err != nil {
		return nil, err
	}

	return &DuplicateReport{
		Request:    log,
		Duplicates: duplicates,
	}, nil
}

func (uc *ColorUseCase) withRedisRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("redis operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if errors.Is(err, redis.Nil) {
			return logging.NewOperationError(operation, requestID, err)
		}
		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			opLogger.Error("redis operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient redis error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func (uc *ColorUseCase) withRedisGet(ctx context.Context, requestID, operation, cacheKey string) (string, error) {
	var result string
	err := uc.withRedisRetry(ctx, requestID, operation, func() error {
		value, err := uc.cache.Get(ctx, cacheKey)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		return "", err
	}
	return result, nil
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
