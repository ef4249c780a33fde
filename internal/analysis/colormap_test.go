package analysis

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJetColorEndpoints(t *testing.T) {
	lo := jetColor(0)
	hi := jetColor(1)
	assert.True(t, lo.B > lo.R, "low end is blue-dominant")
	assert.True(t, hi.R > hi.B, "high end is red-dominant")
}

func TestBipolarColorSigns(t *testing.T) {
	neg := bipolarColor(-1)
	zero := bipolarColor(0)
	pos := bipolarColor(1)
	assert.Equal(t, uint8(255), neg.B)
	assert.Equal(t, uint8(0), neg.R)
	assert.Equal(t, uint8(255), zero.R)
	assert.Equal(t, uint8(255), zero.B)
	assert.Equal(t, uint8(255), pos.R)
	assert.Equal(t, uint8(0), pos.B)
}

func TestCategoricalColorStable(t *testing.T) {
	assert.Equal(t, categoricalColor(3), categoricalColor(3))
	assert.NotEqual(t, categoricalColor(1), categoricalColor(2))
	bg := categoricalColor(0)
	assert.Equal(t, bg.R, bg.G)
	assert.Equal(t, bg.G, bg.B)
}

func TestWritePNGUpscalesSmallMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sign_map.png")
	field := []int32{1, -1, 0, 1, -1, 0}
	require.NoError(t, writeBipolarPNG(path, field, 2, 3))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfgImg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cfgImg.Width, previewMinWidth)
	assert.Equal(t, 0, cfgImg.Width%3, "integer upscale preserves the pixel grid")
}

func TestWritePNGKeepsLargeMaps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "azimuth_map.png")
	w, h := previewMinWidth, 4
	field := make([]float64, w*h)
	for i := range field {
		field[i] = float64(i)
	}
	require.NoError(t, writeJetPNG(path, field, h, w, 0, float64(len(field)-1)))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfgImg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, w, cfgImg.Width)
	assert.Equal(t, h, cfgImg.Height)
}

func TestWriteMagnitudePlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "magnitude_LR.png")
	field := []float64{0, 1, 2, 3, 4, 5}
	require.NoError(t, writeMagnitudePlot(path, "Response magnitude, LR", field, 2, 3))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
