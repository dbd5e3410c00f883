// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/example/facetone/internal/palette"
)

// Config holds every environment-driven setting of the service.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	DatabaseDSN string
	RedisAddr   string
	CacheTTL    time.Duration

	JWTSecret   string
	JWTAudience string

	FacefinderModel   string
	LandmarkAddr      string
	Landmarks         string
	PuplocModel       string
	LipCascadeDir     string
	FaceMinSizePct    float64
	FaceMinQuality    float64
	DetectorSerialize bool
	ColorStrategy     string

	DebugDir   string
	DebugMasks bool

	RateLimit float64
	RateBurst int

	LogLevel string
	LogFile  string
}

// Local landmark backends, used when LANDMARK_ADDR is empty.
const (
	LandmarksPigo     = "pigo"
	LandmarksTemplate = "template"
)

// Load reads the environment. Malformed values are reported, not defaulted.
func Load() (Config, error) {
	p := parser{}
	cfg := Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: p.durationVar("SHUTDOWN_TIMEOUT", 15*time.Second),

		DatabaseDSN: getEnv("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=facetone port=5432 sslmode=disable"),
		RedisAddr:   getEnv("REDIS_ADDR", "redis:6379"),
		CacheTTL:    p.durationVar("CACHE_TTL", 24*time.Hour),

		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTAudience: os.Getenv("JWT_AUDIENCE"),

		FacefinderModel:   getEnv("FACEFINDER_MODEL", "cascade/facefinder"),
		LandmarkAddr:      os.Getenv("LANDMARK_ADDR"),
		Landmarks:         getEnv("LANDMARKS", LandmarksPigo),
		PuplocModel:       getEnv("PUPLOC_MODEL", "cascade/puploc"),
		LipCascadeDir:     getEnv("LIP_CASCADE_DIR", "cascade/lps"),
		FaceMinSizePct:    p.floatVar("FACE_MIN_SIZE_PCT", 10),
		FaceMinQuality:    p.floatVar("FACE_MIN_QUALITY", 5),
		DetectorSerialize: p.boolVar("DETECTOR_SERIALIZE", false),
		ColorStrategy:     getEnv("COLOR_STRATEGY", palette.StrategyKMeans),

		DebugDir:   os.Getenv("DEBUG_DIR"),
		DebugMasks: p.boolVar("DEBUG_MASKS", false),

		RateLimit: p.floatVar("RATE_LIMIT", 0),
		RateBurst: p.intVar("RATE_BURST", 5),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  os.Getenv("LOG_FILE"),
	}
	if p.err != nil {
		return Config{}, p.err
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive, got %s", c.ShutdownTimeout)
	}
	if c.FaceMinSizePct <= 0 || c.FaceMinSizePct > 100 {
		return fmt.Errorf("FACE_MIN_SIZE_PCT must be in (0, 100], got %v", c.FaceMinSizePct)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT must not be negative, got %v", c.RateLimit)
	}
	if c.RateLimit > 0 && c.RateBurst < 1 {
		return fmt.Errorf("RATE_BURST must be at least 1 when RATE_LIMIT is set, got %d", c.RateBurst)
	}
	if c.Landmarks != LandmarksPigo && c.Landmarks != LandmarksTemplate {
		return fmt.Errorf("LANDMARKS must be %q or %q, got %q", LandmarksPigo, LandmarksTemplate, c.Landmarks)
	}
	if _, err := palette.NewExtractor(c.ColorStrategy); err != nil {
		return fmt.Errorf("COLOR_STRATEGY: %w", err)
	}
	return nil
}

// parser keeps the first malformed variable.
type parser struct {
	err error
}

func (p *parser) fail(key, value string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s=%q: %w", key, value, err)
	}
}

func (p *parser) durationVar(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return d
}

func (p *parser) floatVar(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return f
}

func (p *parser) intVar(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return n
}

func (p *parser) boolVar(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v, err)
		return fallback
	}
	return b
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
