package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/facetone/internal/analysis"
	"github.com/example/facetone/internal/auth"
	"github.com/example/facetone/internal/logging"
	"github.com/example/facetone/internal/repository"
	"github.com/example/facetone/internal/usecase"
)

// MaxUploadSize caps the face_image part.
const MaxUploadSize = 10 << 20

// multipartOverhead leaves room for boundaries and part headers on top of the
// file itself.
const multipartOverhead = 1 << 20

// FormField is the multipart field carrying the photo.
const FormField = "face_image"

// RequestIDHeader carries the analysis request id on /colors responses.
const RequestIDHeader = "X-Request-ID"

var allowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/gif":  true,
	"image/tiff": true,
}

// Service is the use case surface the handlers depend on.
type Service interface {
	AnalyzeColors(ctx context.Context, userID string, raw []byte) (*usecase.Outcome, error)
	GetResult(ctx context.Context, userID, requestID string) (*repository.ColorAnalysisLog, error)
	GetDuplicateReport(ctx context.Context, userID, requestID string) (*usecase.DuplicateReport, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router. Extra middleware,
// such as RateLimit, applies to the upload route only.
func RegisterRoutes(router *gin.Engine, svc Service, authMiddleware gin.HandlerFunc, logger *zap.Logger, uploadMiddleware ...gin.HandlerFunc) {
	h := &handler{svc: svc, logger: logger.Named("http")}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := router.Group("/", authMiddleware)
	upload := append([]gin.HandlerFunc{}, uploadMiddleware...)
	upload = append(upload, h.analyzeColors)
	authed.POST("/colors", upload...)
	authed.GET("/colors/:id", h.getResult)
	authed.GET("/colors/:id/duplicates", h.getDuplicates)
	authed.GET("/metrics", h.getMetrics)
}

type handler struct {
	svc    Service
	logger *zap.Logger
}

func (h *handler) analyzeColors(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxUploadSize+multipartOverhead)

	file, err := c.FormFile(FormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds the upload limit"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": FormField + " file is required"})
		return
	}
	if file.Size > MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds the upload limit"})
		return
	}
	mediaType, _, err := mime.ParseMediaType(file.Header.Get("Content-Type"))
	if err != nil || !allowedContentTypes[mediaType] {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported image type"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image"})
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image"})
		return
	}

	userID, _ := auth.GetUserID(c.Request.Context())
	outcome, err := h.svc.AnalyzeColors(c.Request.Context(), userID, data)
	if outcome != nil {
		c.Header(RequestIDHeader, outcome.RequestID)
	}
	if err != nil {
		if analysis.KindOf(err) != "" {
			c.JSON(http.StatusUnprocessableEntity, analysis.Response(nil, err))
			return
		}
		h.logger.Error("color analysis failed", logging.ErrorFields(err)...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, outcome.Colors.Map())
}

func (h *handler) getResult(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	log, err := h.svc.GetResult(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.lookupFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, log)
}

func (h *handler) getDuplicates(c *gin.Context) {
	userID, _ := auth.GetUserID(c.Request.Context())
	report, err := h.svc.GetDuplicateReport(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.lookupFailed(c, err)
		return
	}
	duplicates := report.Duplicates
	if duplicates == nil {
		duplicates = []*repository.ColorAnalysisLog{}
	}
	c.JSON(http.StatusOK, gin.H{
		"request":    report.Request,
		"duplicates": duplicates,
	})
}

func (h *handler) getMetrics(c *gin.Context) {
	summary, err := h.svc.GetMetricsSummary(c.Request.Context())
	if err != nil {
		h.logger.Error("metrics aggregation failed", logging.ErrorFields(err)...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *handler) lookupFailed(c *gin.Context, err error) {
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "result not found"})
		return
	}
	h.logger.Error("result lookup failed", logging.ErrorFields(err)...)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
