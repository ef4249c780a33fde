package analysis

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// pixelAreaMM2 converts the monitor's physical size and resolution into
// the area, in mm^2, that one pixel's sign patch occupies — used to
// convert `min_area_mm2` into a pixel-count threshold.
func pixelAreaMM2(widthCm, heightCm float64, widthPx, heightPx int) float64 {
	if widthPx == 0 || heightPx == 0 {
		return 0
	}
	mmPerPxX := widthCm * 10 / float64(widthPx)
	mmPerPxY := heightCm * 10 / float64(heightPx)
	return mmPerPxX * mmPerPxY
}

// segment connected-component labels the signed VFS patches (4-connectivity,
// same nonzero sign) and drops components whose area is below minAreaMM2.
// Returns a row-major h*w int32 label map; 0 is background.
func segment(sign []int32, h, w int, pxAreaMM2, minAreaMM2 float64) []int32 {
	g := simple.NewUndirectedGraph()
	for i, s := range sign {
		if s != 0 {
			g.AddNode(simple.Node(i))
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if sign[i] == 0 {
				continue
			}
			if x+1 < w {
				j := i + 1
				if sign[j] == sign[i] {
					g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
				}
			}
			if y+1 < h {
				j := i + w
				if sign[j] == sign[i] {
					g.SetEdge(simple.Edge{F: simple.Node(i), T: simple.Node(j)})
				}
			}
		}
	}

	components := topo.ConnectedComponents(g)
	// ConnectedComponents walks the graph's internal node map, so its
	// component order is not stable across runs. Labels must be: sort by
	// each component's smallest pixel index before numbering.
	sort.Slice(components, func(i, j int) bool {
		return minNodeIndex(components[i]) < minNodeIndex(components[j])
	})
	minPixels := 0.0
	if pxAreaMM2 > 0 {
		minPixels = minAreaMM2 / pxAreaMM2
	}

	areaMap := make([]int32, h*w)
	label := int32(0)
	for _, comp := range components {
		if float64(len(comp)) < minPixels {
			continue
		}
		label++
		for _, n := range comp {
			areaMap[nodeIndex(n)] = label
		}
	}
	return areaMap
}

func nodeIndex(n graph.Node) int64 { return n.ID() }

func minNodeIndex(comp []graph.Node) int64 {
	min := comp[0].ID()
	for _, n := range comp[1:] {
		if n.ID() < min {
			min = n.ID()
		}
	}
	return min
}
