package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/analysis"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/synctracker"
)

func TestRenderWritesHTML(t *testing.T) {
	dir := t.TempDir()
	snap := synctracker.Snapshot{
		Stats: synctracker.Stats{
			Count:     100,
			MeanMs:    0.1,
			StdMs:     2.0,
			Histogram: []float64{10, 80, 10},
			BinEdges:  []float64{-3, -1, 1, 3},
		},
	}
	result := &analysis.Result{
		Width:  4,
		Height: 2,
		Magnitude: map[config.Direction][]float64{
			config.DirectionLR: {1, 2, 3, 4, 5, 6, 7, 8},
		},
	}

	path, err := NewRenderer().Render(dir, snap, result)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, FileName), path)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(body)
	assert.True(t, strings.Contains(html, "Camera/stimulus timing"))
	assert.True(t, strings.Contains(html, "Response magnitude, LR"))
}

func TestRenderWithoutAnalysisResult(t *testing.T) {
	dir := t.TempDir()
	snap := synctracker.Snapshot{
		Stats: synctracker.Stats{Count: 1, Histogram: []float64{1}, BinEdges: []float64{0, 1}},
	}

	path, err := NewRenderer().Render(dir, snap, nil)
	require.NoError(t, err)

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "Response magnitude")
}

func TestRenderCreatesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "analysis_results")
	_, err := NewRenderer().Render(dir, synctracker.Snapshot{}, nil)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, FileName))
	require.NoError(t, err)
}
