package analysis

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/draw"
)

// jetColor maps t in [0,1] to a jet-like RGB color via piecewise-linear
// control points, used for phase and retinotopy maps. The formula lives
// here so rendered previews do not depend on any UI layer's colormap.
func jetColor(t float64) color.RGBA {
	t = clamp01(t)
	r := clamp01(1.5 - math.Abs(4*t-3))
	g := clamp01(1.5 - math.Abs(4*t-2))
	b := clamp01(1.5 - math.Abs(4*t-1))
	return color.RGBA{R: uint8(r * 255), G: uint8(g * 255), B: uint8(b * 255), A: 255}
}

// bipolarColor maps a signed value in [-1,1] to blue (negative) / white
// (zero) / red (positive), used for the sign map.
func bipolarColor(v float64) color.RGBA {
	v = math.Max(-1, math.Min(1, v))
	if v >= 0 {
		return color.RGBA{R: 255, G: uint8(255 * (1 - v)), B: uint8(255 * (1 - v)), A: 255}
	}
	return color.RGBA{R: uint8(255 * (1 + v)), G: uint8(255 * (1 + v)), B: 255, A: 255}
}

// categoricalColor assigns a stable, visually distinct color to a
// non-negative integer label, via golden-angle hue stepping; label 0 is
// always background gray.
func categoricalColor(label int32) color.RGBA {
	if label == 0 {
		return color.RGBA{R: 32, G: 32, B: 32, A: 255}
	}
	const goldenAngle = 137.508
	hue := math.Mod(float64(label)*goldenAngle, 360) / 360
	r, g, b := hslToRGB(hue, 0.65, 0.55)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64
	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t++
	}
	if t > 1 {
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	default:
		return p
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// writeJetPNG renders a row-major h*w field to path, scaling by [min,max]
// into the jet colormap.
func writeJetPNG(path string, field []float64, h, w int, min, max float64) error {
	return writePNG(path, h, w, func(i int) color.RGBA {
		if max <= min {
			return jetColor(0)
		}
		return jetColor((field[i] - min) / (max - min))
	})
}

// writeBipolarPNG renders a row-major h*w signed field (assumed in
// [-1,1], e.g. a thresholded sign map) to path.
func writeBipolarPNG(path string, field []int32, h, w int) error {
	return writePNG(path, h, w, func(i int) color.RGBA {
		return bipolarColor(float64(field[i]))
	})
}

// writeCategoricalPNG renders an integer label map to path.
func writeCategoricalPNG(path string, labels []int32, h, w int) error {
	return writePNG(path, h, w, func(i int) color.RGBA {
		return categoricalColor(labels[i])
	})
}

// previewMinWidth is the smallest preview width written to disk; maps
// from small camera ROIs are integer-upscaled to at least this.
const previewMinWidth = 512

func writePNG(path string, h, w int, at func(i int) color.RGBA) error {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, at(y*w+x))
		}
	}
	// Nearest-neighbor only: every preview pixel must keep an exact map
	// value (labels and sign patches in particular must not blend).
	out := image.Image(img)
	if w > 0 && w < previewMinWidth {
		scale := (previewMinWidth + w - 1) / w
		dst := image.NewRGBA(image.Rect(0, 0, w*scale, h*scale))
		draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
		out = dst
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, out)
}
