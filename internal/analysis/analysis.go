// Package analysis extracts hair, skin and lip colors from a portrait.
//
// An Analyzer is built once with its detection capabilities and shared by all
// requests; it holds no per-call state. Each call is a synchronous pipeline:
//
//	decode -> locate face -> landmarks -> hair/skin/lip regions -> dominant colors -> hex
//
// When the detector reports several faces the first one is used, in detector
// order, regardless of size or score.
package analysis

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/palette"
	"github.com/example/facetone/internal/pixel"
	"github.com/example/facetone/internal/segment"
)

// Colors are the three hex codes of a successful analysis.
type Colors struct {
	Hair string `json:"hair"`
	Skin string `json:"skin"`
	Lips string `json:"lips"`
}

// Map returns the colors keyed by region name.
func (c Colors) Map() map[string]string {
	return map[string]string{
		string(segment.Hair): c.Hair,
		string(segment.Skin): c.Skin,
		string(segment.Lips): c.Lips,
	}
}

// Result is a successful analysis with the geometry it was derived from.
type Result struct {
	Colors    Colors
	Face      detector.BoundingBox
	Landmarks detector.LandmarkSet
	// Overlay is the debug render path, empty when none was written.
	Overlay string
}

// Response builds the caller-facing map: the three colors, or a single "error"
// entry carrying the user-facing message.
func Response(res *Result, err error) map[string]string {
	if err != nil {
		msg := messages[KindRegionAnalysisFailed]
		var ae *Error
		if errors.As(err, &ae) {
			msg = ae.Message()
		}
		return map[string]string{"error": msg}
	}
	return res.Colors.Map()
}

// Visualizer renders a best-effort debug overlay.
type Visualizer interface {
	Render(img *pixel.Image, face detector.BoundingBox, landmarks detector.LandmarkSet) (string, error)
}

// Analyzer runs the pipeline.
type Analyzer struct {
	locator    detector.Locator
	landmarks  detector.LandmarkExtractor
	extractor  palette.Extractor
	visualizer Visualizer
	logger     *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithVisualizer enables debug overlays.
func WithVisualizer(v Visualizer) Option {
	return func(a *Analyzer) { a.visualizer = v }
}

// New builds an Analyzer from long-lived, read-only capabilities.
func New(locator detector.Locator, landmarks detector.LandmarkExtractor, extractor palette.Extractor, logger *zap.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		locator:   locator,
		landmarks: landmarks,
		extractor: extractor,
		logger:    logger.Named("analyzer"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AnalyzeImage decodes raw, analyzes it and then, separately, renders the debug
// overlay. Overlay failures are logged and never change the result.
func (a *Analyzer) AnalyzeImage(ctx context.Context, raw []byte) (*Result, error) {
	img, err := pixel.Decode(raw)
	if err != nil {
		return nil, fail(KindInvalidImage, StageDecode, err)
	}

	res, err := a.Analyze(ctx, img)
	if err != nil {
		return nil, err
	}

	if a.visualizer != nil {
		res.Overlay = a.renderOverlay(img, res)
	}
	return res, nil
}

// Analyze runs the pipeline on a decoded image.
func (a *Analyzer) Analyze(ctx context.Context, img *pixel.Image) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	faces, err := a.locator.Locate(ctx, img)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fail(KindRegionAnalysisFailed, StageLocate, err)
	}
	if len(faces) == 0 {
		return nil, fail(KindFaceNotFound, StageLocate, ErrNoFace)
	}
	face := faces[0]
	if len(faces) > 1 {
		a.logger.Debug("multiple faces detected, using the first", zap.Int("faces", len(faces)))
	}
	if face.Empty() {
		return nil, fail(KindRegionAnalysisFailed, StageLandmarks, fmt.Errorf("degenerate face box %+v", face))
	}

	var landmarks detector.LandmarkSet
	if err := guard(StageLandmarks, func() error {
		var err error
		landmarks, err = a.landmarks.Extract(ctx, img, face)
		return err
	}); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	res := &Result{Face: face, Landmarks: landmarks}
	if err := guard(StageHair, func() error {
		res.Colors.Hair = a.encode(segment.HairRegion(img, face))
		return nil
	}); err != nil {
		return nil, err
	}
	if err := guard(StageSkin, func() error {
		res.Colors.Skin = a.encode(segment.SkinRegion(img, face))
		return nil
	}); err != nil {
		return nil, err
	}
	if err := guard(StageLips, func() error {
		lips, err := segment.LipRegion(img, landmarks)
		if err != nil {
			return err
		}
		res.Colors.Lips = a.encode(lips)
		return nil
	}); err != nil {
		return nil, err
	}
	return res, nil
}

func (a *Analyzer) encode(r segment.Region) string {
	return palette.Hex(a.extractor.Dominant(r.Sample))
}

// renderOverlay is its own call site so nothing it does, panics included, can
// reach the analysis result.
func (a *Analyzer) renderOverlay(img *pixel.Image, res *Result) (path string) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("overlay render panicked", zap.Any("panic", r))
			path = ""
		}
	}()
	path, err := a.visualizer.Render(img, res.Face, res.Landmarks)
	if err != nil {
		a.logger.Warn("overlay render failed", zap.Error(err))
		return ""
	}
	return path
}

// guard runs one region stage and turns both errors and panics into
// region_analysis_failed.
func guard(stage Stage, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fail(KindRegionAnalysisFailed, stage, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := fn(); err != nil {
		return fail(KindRegionAnalysisFailed, stage, err)
	}
	return nil
}
