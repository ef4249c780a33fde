// Package report renders a static HTML summary page for a session:
// the SyncTracker timing histogram plus per-direction analysis magnitude
// summaries. It is a local debugging artifact written next to the
// analysis results, not a network service.
package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/analysis"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/synctracker"
)

// FileName is the report file written into a session's analysis_results/.
const FileName = "session_report.html"

// Renderer builds the session report page.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// Render writes the report HTML under dir and returns the file path.
// Either input may be zero-valued; the corresponding charts are omitted
// so a preview-only run still gets a timing page.
func (r *Renderer) Render(dir string, sync synctracker.Snapshot, result *analysis.Result) (string, error) {
	page := components.NewPage()
	page.PageTitle = "ISI Session Report"

	if len(sync.Stats.Histogram) > 0 {
		page.AddCharts(syncHistogram(sync))
	}
	if result != nil {
		for _, d := range config.AllDirections {
			mag, ok := result.Magnitude[d]
			if !ok {
				continue
			}
			page.AddCharts(magnitudeProfile(d, mag, result.Width))
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: creating %s: %w", dir, err)
	}
	path := filepath.Join(dir, FileName)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("report: creating %s: %w", path, err)
	}
	defer f.Close()
	if err := page.Render(f); err != nil {
		return "", fmt.Errorf("report: rendering %s: %w", path, err)
	}
	return path, nil
}

// syncHistogram charts the camera/stimulus timestamp delta distribution.
// In camera-triggered mode every delta is zero, so the chart degenerates
// to one bin; kept for the decoupled-clock mode.
func syncHistogram(snap synctracker.Snapshot) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Sync Timing", Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Camera/stimulus timing",
			Subtitle: fmt.Sprintf("n=%d mean=%.3fms std=%.3fms", snap.Stats.Count, snap.Stats.MeanMs, snap.Stats.StdMs),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "delta (ms)"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "samples"}),
	)

	labels := make([]string, len(snap.Stats.Histogram))
	data := make([]opts.BarData, len(snap.Stats.Histogram))
	for i, count := range snap.Stats.Histogram {
		if i+1 < len(snap.Stats.BinEdges) {
			labels[i] = fmt.Sprintf("%.2f", (snap.Stats.BinEdges[i]+snap.Stats.BinEdges[i+1])/2)
		}
		data[i] = opts.BarData{Value: count}
	}
	bar.SetXAxis(labels)
	bar.AddSeries("delta", data)
	return bar
}

// magnitudeProfile charts the row-mean response magnitude for one
// direction, a quick check that the stimulus frequency actually shows up
// in cortex before anyone opens the full maps.
func magnitudeProfile(d config.Direction, magnitude []float64, width int) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Response magnitude, %s (row mean)", d)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "row"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "magnitude"}),
	)

	if width <= 0 || len(magnitude) == 0 {
		return line
	}
	height := len(magnitude) / width
	labels := make([]string, height)
	data := make([]opts.LineData, height)
	for y := 0; y < height; y++ {
		sum := 0.0
		for x := 0; x < width; x++ {
			sum += magnitude[y*width+x]
		}
		labels[y] = fmt.Sprintf("%d", y)
		data[y] = opts.LineData{Value: sum / float64(width)}
	}
	line.SetXAxis(labels)
	line.AddSeries(string(d), data)
	return line
}
