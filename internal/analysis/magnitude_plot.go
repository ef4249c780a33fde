package analysis

import (
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// magnitudeGrid adapts a row-major field to plotter.GridXYZ. Row 0 of the
// field is the top camera row; Z flips the row index so the plot matches
// the PNG previews' orientation.
type magnitudeGrid struct {
	field []float64
	h, w  int
}

func (g magnitudeGrid) Dims() (int, int)   { return g.w, g.h }
func (g magnitudeGrid) X(c int) float64    { return float64(c) }
func (g magnitudeGrid) Y(r int) float64    { return float64(r) }
func (g magnitudeGrid) Z(c, r int) float64 { return g.field[(g.h-1-r)*g.w+c] }

// jetPalette exposes the pipeline's own colormap to the plotting layer,
// so the magnitude figures use the same colors as the raw previews.
type jetPalette struct{ n int }

func (p jetPalette) Colors() []color.Color {
	out := make([]color.Color, p.n)
	for i := range out {
		out[i] = jetColor(float64(i) / float64(p.n-1))
	}
	return out
}

// writeMagnitudePlot renders one direction's response magnitude as a
// heatmap figure with pixel axes.
func writeMagnitudePlot(path, title string, field []float64, h, w int) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "x (px)"
	p.Y.Label.Text = "y (px)"

	hm := plotter.NewHeatMap(magnitudeGrid{field: field, h: h, w: w}, jetPalette{n: 255})
	p.Add(hm)

	return p.Save(8*vg.Inch, 6*vg.Inch, path)
}
