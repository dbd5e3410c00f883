package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/example/facetone/internal/analysis"
	"github.com/example/facetone/internal/bootstrap"
	"github.com/example/facetone/internal/detector"
	"github.com/example/facetone/internal/logging"
	"github.com/example/facetone/internal/palette"
)

type analyzeOptions struct {
	Facefinder   string
	LandmarkAddr string
	Landmarks    string
	Puploc       string
	LipCascades  string
	DebugDir     string
	Masks        bool
	Strategy     string
	Workers      int
	Format       string
	Serialize    bool
	MinSizePct   float64
	MinQuality   float64
	LogLevel     string
	Quiet        bool
}

// Row is one analyzed file. Error holds the user-facing message on failure.
type Row struct {
	Path  string `csv:"path" json:"path"`
	Hair  string `csv:"hair" json:"hair,omitempty"`
	Skin  string `csv:"skin" json:"skin,omitempty"`
	Lips  string `csv:"lips" json:"lips,omitempty"`
	Error string `csv:"error" json:"error,omitempty"`
}

// ImageAnalyzer is the part of the pipeline the batch runner needs.
type ImageAnalyzer interface {
	AnalyzeImage(ctx context.Context, raw []byte) (*analysis.Result, error)
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true,
	".bmp": true, ".gif": true, ".tif": true, ".tiff": true,
}

func newAnalyzeCmd() *cobra.Command {
	opts := analyzeOptions{}
	tuning := detector.DefaultTuning()

	cmd := &cobra.Command{
		Use:   "analyze <file|dir>...",
		Short: "Analyze portrait photos and print their colors",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Facefinder, "facefinder", envOr("FACEFINDER_MODEL", "cascade/facefinder"), "path to the pigo facefinder cascade")
	f.StringVar(&opts.LandmarkAddr, "landmark-addr", os.Getenv("LANDMARK_ADDR"), "gRPC address of a 68-point landmark service")
	f.StringVar(&opts.Landmarks, "landmarks", envOr("LANDMARKS", "pigo"), "local landmarks when no service is set: pigo or template")
	f.StringVar(&opts.Puploc, "puploc", envOr("PUPLOC_MODEL", "cascade/puploc"), "path to the pigo pupil localization cascade")
	f.StringVar(&opts.LipCascades, "lip-cascades", envOr("LIP_CASCADE_DIR", "cascade/lps"), "directory holding pigo's lp81, lp82 and lp84 cascades")
	f.StringVar(&opts.DebugDir, "debug-dir", "", "write debug overlays to this directory")
	f.BoolVar(&opts.Masks, "masks", false, "also trace the lip mask to SVG next to each overlay")
	f.StringVar(&opts.Strategy, "strategy", palette.StrategyKMeans, "dominant color strategy: kmeans or mean")
	f.IntVarP(&opts.Workers, "workers", "w", runtime.NumCPU(), "number of files analyzed concurrently")
	f.StringVarP(&opts.Format, "format", "f", "json", "output format: json or csv")
	f.BoolVar(&opts.Serialize, "serialize", false, "serialize detector calls")
	f.Float64Var(&opts.MinSizePct, "min-face", tuning.MinSizePct, "minimum face size as a percentage of the shorter image side")
	f.Float64Var(&opts.MinQuality, "min-quality", float64(tuning.MinQuality), "minimum detection quality")
	f.StringVar(&opts.LogLevel, "log-level", "warn", "log level")
	f.BoolVarP(&opts.Quiet, "quiet", "q", false, "hide the progress bar")
	return cmd
}

func runAnalyze(cmd *cobra.Command, opts analyzeOptions, args []string) error {
	if opts.Format != "json" && opts.Format != "csv" {
		return fmt.Errorf("unknown format %q (valid: json, csv)", opts.Format)
	}
	if opts.Workers < 1 {
		return fmt.Errorf("--workers must be at least 1, got %d", opts.Workers)
	}
	if opts.Landmarks != "pigo" && opts.Landmarks != "template" {
		return fmt.Errorf("unknown landmarks %q (valid: pigo, template)", opts.Landmarks)
	}

	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no image files found in %s", strings.Join(args, ", "))
	}

	logger, err := logging.NewLogger(logging.Options{Level: opts.LogLevel, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	tuning := detector.DefaultTuning()
	tuning.MinSizePct = opts.MinSizePct
	tuning.MinQuality = float32(opts.MinQuality)
	puploc := opts.Puploc
	if opts.Landmarks == "template" {
		puploc = ""
	}
	pipeline, err := bootstrap.Build(cmd.Context(), bootstrap.Settings{
		FacefinderModel: opts.Facefinder,
		Tuning:          tuning,
		LandmarkAddr:    opts.LandmarkAddr,
		PuplocModel:     puploc,
		LipCascadeDir:   opts.LipCascades,
		Serialize:       opts.Serialize,
		ColorStrategy:   opts.Strategy,
		DebugDir:        opts.DebugDir,
		DebugMasks:      opts.Masks,
	}, logger)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	var progress io.Writer = cmd.ErrOrStderr()
	if opts.Quiet {
		progress = io.Discard
	}
	rows, err := analyzeFiles(cmd.Context(), pipeline.Analyzer, paths, opts.Workers, progress, logger)
	if err != nil {
		return err
	}
	return writeRows(cmd.OutOrStdout(), opts.Format, rows)
}

// expandInputs replaces directories with the image files below them, sorted.
// Files named explicitly are kept whatever their extension.
func expandInputs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(path))] {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		paths = append(paths, found...)
	}
	return paths, nil
}

// analyzeFiles runs the analyzer over paths with at most workers in flight.
// Per-file failures land in the row; only cancellation aborts the batch.
func analyzeFiles(ctx context.Context, analyzer ImageAnalyzer, paths []string, workers int, progress io.Writer, logger *zap.Logger) ([]Row, error) {
	rows := make([]Row, len(paths))
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetDescription("Analyzing"),
		progressbar.OptionSetWriter(progress),
		progressbar.OptionShowCount(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			defer bar.Add(1) //nolint:errcheck
			if err := gctx.Err(); err != nil {
				return err
			}
			rows[i] = analyzeFile(gctx, analyzer, path, logger)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	_ = bar.Finish()
	fmt.Fprintln(progress)
	return rows, nil
}

func analyzeFile(ctx context.Context, analyzer ImageAnalyzer, path string, logger *zap.Logger) Row {
	row := Row{Path: path}
	raw, err := os.ReadFile(path)
	if err != nil {
		row.Error = err.Error()
		return row
	}

	res, err := analyzer.AnalyzeImage(ctx, raw)
	if err != nil {
		var ae *analysis.Error
		if errors.As(err, &ae) {
			row.Error = ae.Message()
		} else {
			row.Error = err.Error()
		}
		logger.Debug("analysis failed", zap.String("path", path), zap.Error(err))
		return row
	}

	row.Hair, row.Skin, row.Lips = res.Colors.Hair, res.Colors.Skin, res.Colors.Lips
	return row
}

func writeRows(w io.Writer, format string, rows []Row) error {
	switch format {
	case "csv":
		cw := csv.NewWriter(w)
		enc := csvutil.NewEncoder(cw)
		var err error
		if len(rows) == 0 {
			err = enc.EncodeHeader(Row{})
		} else {
			err = enc.Encode(rows)
		}
		if err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rows)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
