// Package bootstrap assembles the long-lived analysis pipeline shared by the
// HTTP service and the CLI.
package bootstrap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/facetone/internal/analysis"
	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/grpcclient"
	"github.com/example/facetone/internal/palette"
	"github.com/example/facetone/internal/visualize"
)

// Settings selects the pipeline's capabilities.
type Settings struct {
	FacefinderModel string
	Tuning          detector.Tuning
	// LandmarkAddr selects the remote 68-point model.
	LandmarkAddr string
	// PuplocModel and LipCascadeDir select pigo's lip cascades when no remote
	// model is configured. Without either, landmarks come from the template shape.
	PuplocModel   string
	LipCascadeDir string
	// Serialize guards the detectors with a mutex for non-reentrant backends.
	Serialize     bool
	ColorStrategy string
	DebugDir      string
	DebugMasks    bool
}

// Pipeline is a ready analyzer plus whatever connections it holds.
type Pipeline struct {
	Analyzer *analysis.Analyzer
	conn     *grpc.ClientConn
}

// Close releases the landmark connection, if any.
func (p *Pipeline) Close() error {
	if p == nil || p.conn == nil {
		return nil
	}
	return p.conn.Close()
}

// Build loads the face model, connects the landmark backend and wires the
// analyzer. Nothing here is per-request.
func Build(ctx context.Context, s Settings, logger *zap.Logger) (*Pipeline, error) {
	extractor, err := palette.NewExtractor(s.ColorStrategy)
	if err != nil {
		return nil, err
	}

	pigoLocator, err := detector.LoadPigoLocator(s.FacefinderModel, s.Tuning)
	if err != nil {
		return nil, fmt.Errorf("loading face model: %w", err)
	}
	var locator detector.Locator = pigoLocator

	p := &Pipeline{}
	landmarks, conn, err := buildLandmarks(ctx, s, logger)
	if err != nil {
		return nil, err
	}
	p.conn = conn

	if s.Serialize {
		locator = detector.Serialized(locator)
		landmarks = detector.SerializedLandmarks(landmarks)
	}

	var opts []analysis.Option
	if s.DebugDir != "" {
		opts = append(opts, analysis.WithVisualizer(visualize.NewRenderer(s.DebugDir, s.DebugMasks, logger)))
	}

	p.Analyzer = analysis.New(locator, landmarks, extractor, logger, opts...)
	logger.Info("analysis pipeline ready",
		zap.String("facefinder", s.FacefinderModel),
		zap.String("landmarks", landmarkMode(s)),
		zap.String("landmark_addr", s.LandmarkAddr),
		zap.String("strategy", s.ColorStrategy),
		zap.Bool("serialized", s.Serialize),
		zap.String("debug_dir", s.DebugDir),
	)
	return p, nil
}

// buildLandmarks picks the remote service, then pigo's lip cascades, then the
// template shape.
func buildLandmarks(ctx context.Context, s Settings, logger *zap.Logger) (detector.LandmarkExtractor, *grpc.ClientConn, error) {
	switch landmarkMode(s) {
	case "remote":
		client, conn, err := grpcclient.DialLandmarkService(ctx, s.LandmarkAddr, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, conn, nil
	case "pigo":
		lm, err := detector.LoadPigoLandmarks(s.PuplocModel, s.LipCascadeDir)
		if err != nil {
			return nil, nil, fmt.Errorf("loading landmark cascades: %w", err)
		}
		return lm, nil, nil
	default:
		logger.Info("no landmark model configured, using template landmarks")
		return detector.TemplateLandmarks{}, nil, nil
	}
}

func landmarkMode(s Settings) string {
	switch {
	case s.LandmarkAddr != "":
		return "remote"
	case s.PuplocModel != "" && s.LipCascadeDir != "":
		return "pigo"
	default:
		return "template"
	}
}
