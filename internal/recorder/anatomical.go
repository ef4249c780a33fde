package recorder

import (
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"
)

// writeAnatomicalNPY writes a single grayscale frame as a 2D float64 .npy
// array, the format downstream analysis tooling (numpy-based or otherwise)
// can load directly.
func writeAnatomicalNPY(path string, width, height int, pixels []byte) error {
	data := make([]float64, width*height)
	for i, px := range pixels {
		data[i] = float64(px)
	}
	m := mat.NewDense(height, width, data)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return npyio.Write(f, m)
}
