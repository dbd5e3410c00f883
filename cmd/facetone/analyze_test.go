package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/facetone/internal/analysis"
)

type fileAnalyzer struct {
	mu      sync.Mutex
	results map[string]*analysis.Result
	errs    map[string]error
	active  int32
	maxSeen int32
}

func (f *fileAnalyzer) AnalyzeImage(ctx context.Context, raw []byte) (*analysis.Result, error) {
	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		seen := atomic.LoadInt32(&f.maxSeen)
		if n <= seen || atomic.CompareAndSwapInt32(&f.maxSeen, seen, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	key := string(raw)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.results[key], nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExpandInputs(t *testing.T) {
	dir := t.TempDir()
	b := writeFile(t, dir, "photos/b.JPG", "b")
	a := writeFile(t, dir, "photos/a.png", "a")
	nested := writeFile(t, dir, "photos/nested/c.webp", "c")
	writeFile(t, dir, "photos/notes.txt", "skip")
	explicit := writeFile(t, dir, "raw.dat", "x")

	paths, err := expandInputs([]string{explicit, filepath.Join(dir, "photos")})
	require.NoError(t, err)
	assert.Equal(t, []string{explicit, a, b, nested}, paths)
}

func TestExpandInputsMissing(t *testing.T) {
	_, err := expandInputs([]string{filepath.Join(t.TempDir(), "nope.jpg")})
	assert.Error(t, err)
}

func TestAnalyzeFilesKeepsInputOrder(t *testing.T) {
	dir := t.TempDir()
	ok := writeFile(t, dir, "ok.jpg", "ok")
	noFace := writeFile(t, dir, "noface.jpg", "noface")
	missing := filepath.Join(dir, "missing.jpg")

	analyzer := &fileAnalyzer{
		results: map[string]*analysis.Result{
			"ok": {Colors: analysis.Colors{Hair: "#111111", Skin: "#222222", Lips: "#333333"}},
		},
		errs: map[string]error{
			"noface": &analysis.Error{Kind: analysis.KindFaceNotFound, Stage: analysis.StageLocate, Err: analysis.ErrNoFace},
		},
	}

	rows, err := analyzeFiles(context.Background(), analyzer, []string{ok, noFace, missing}, 2, io.Discard, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, Row{Path: ok, Hair: "#111111", Skin: "#222222", Lips: "#333333"}, rows[0])
	assert.Equal(t, noFace, rows[1].Path)
	assert.Equal(t, "Unable to detect face, please upload a clear front-facing face photo.", rows[1].Error)
	assert.Empty(t, rows[1].Hair)
	assert.Equal(t, missing, rows[2].Path)
	assert.NotEmpty(t, rows[2].Error)
}

func TestAnalyzeFilesRespectsWorkerLimit(t *testing.T) {
	dir := t.TempDir()
	analyzer := &fileAnalyzer{results: map[string]*analysis.Result{}}
	var paths []string
	for i := 0; i < 12; i++ {
		name := string(rune('a'+i)) + ".png"
		paths = append(paths, writeFile(t, dir, name, name))
		analyzer.results[name] = &analysis.Result{}
	}

	_, err := analyzeFiles(context.Background(), analyzer, paths, 3, io.Discard, zap.NewNop())
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&analyzer.maxSeen), int32(3))
}

func TestAnalyzeFilesCanceled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.png", "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := analyzeFiles(ctx, &fileAnalyzer{}, []string{path}, 1, io.Discard, zap.NewNop())
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWriteRows(t *testing.T) {
	rows := []Row{
		{Path: "a.jpg", Hair: "#111111", Skin: "#222222", Lips: "#333333"},
		{Path: "b.jpg", Error: "Unable to detect face, please upload a clear front-facing face photo."},
	}

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeRows(&buf, "csv", rows))
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		assert.Equal(t, "path,hair,skin,lips,error", lines[0])
		assert.Equal(t, "a.jpg,#111111,#222222,#333333,", lines[1])
		assert.Equal(t, `b.jpg,,,,"Unable to detect face, please upload a clear front-facing face photo."`, lines[2])
	})

	t.Run("csv empty", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeRows(&buf, "csv", nil))
		assert.Equal(t, "path,hair,skin,lips,error", strings.TrimSpace(buf.String()))
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeRows(&buf, "json", rows))
		var decoded []map[string]string
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		require.Len(t, decoded, 2)
		assert.Equal(t, map[string]string{"path": "a.jpg", "hair": "#111111", "skin": "#222222", "lips": "#333333"}, decoded[0])
		assert.Equal(t, "b.jpg", decoded[1]["path"])
		assert.NotContains(t, decoded[1], "hair")
	})
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, Version+"\n", out.String())
}

func TestAnalyzeCommandValidatesFlags(t *testing.T) {
	path := writeFile(t, t.TempDir(), "a.png", "a")

	tests := [][]string{
		{"analyze", "--format", "xml", path},
		{"analyze", "--workers", "0", path},
		{"analyze", "--landmarks", "dlib", path},
		{"analyze"},
	}
	for _, args := range tests {
		root := newRootCmd()
		root.SetOut(io.Discard)
		root.SetErr(io.Discard)
		root.SetArgs(args)
		assert.Error(t, root.Execute(), strings.Join(args, " "))
	}
}
