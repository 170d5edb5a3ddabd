package segmentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabel3DSeparatesBlocks(t *testing.T) {
	// Two 2x2x2 blocks at opposite corners of a 4x4x4 grid.
	lines, slices, samples := 4, 4, 4
	mask := make([]bool, lines*slices*samples)
	idx := func(ln, sl, sm int) int { return (ln*slices+sl)*samples + sm }

	for _, d := range [][3]int{{0, 0, 0}, {2, 2, 2}} {
		for ln := d[0]; ln < d[0]+2; ln++ {
			for sl := d[1]; sl < d[1]+2; sl++ {
				for sm := d[2]; sm < d[2]+2; sm++ {
					mask[idx(ln, sl, sm)] = true
				}
			}
		}
	}

	labels := Label3D(mask, lines, slices, samples)

	a := labels[idx(0, 0, 0)]
	b := labels[idx(2, 2, 2)]
	require.NotZero(t, a)
	require.NotZero(t, b)
	assert.NotEqual(t, a, b)

	assert.Equal(t, a, labels[idx(1, 1, 1)])
	assert.Equal(t, b, labels[idx(3, 3, 3)])
	assert.Zero(t, labels[idx(0, 0, 3)])
}

func TestLabel3DFaceConnectivityOnly(t *testing.T) {
	// Edge-adjacent voxels (sharing no face) must not merge.
	lines, slices, samples := 2, 2, 2
	mask := make([]bool, 8)
	idx := func(ln, sl, sm int) int { return (ln*slices+sl)*samples + sm }
	mask[idx(0, 0, 0)] = true
	mask[idx(0, 1, 1)] = true
	mask[idx(1, 1, 0)] = true

	labels := Label3D(mask, lines, slices, samples)
	assert.NotEqual(t, labels[idx(0, 0, 0)], labels[idx(0, 1, 1)])
	assert.NotEqual(t, labels[idx(0, 0, 0)], labels[idx(1, 1, 0)])
	assert.NotEqual(t, labels[idx(0, 1, 1)], labels[idx(1, 1, 0)])
}

func TestLabel3DMergesAcrossScanOrder(t *testing.T) {
	// A U shape forces two provisional labels that must collapse into one.
	lines, slices, samples := 1, 3, 3
	mask := make([]bool, 9)
	idx := func(sl, sm int) int { return sl*samples + sm }
	for _, p := range [][2]int{{0, 0}, {0, 2}, {1, 0}, {1, 2}, {2, 0}, {2, 1}, {2, 2}} {
		mask[idx(p[0], p[1])] = true
	}

	labels := Label3D(mask, lines, slices, samples)
	assert.Equal(t, labels[idx(0, 0)], labels[idx(0, 2)])
	assert.Zero(t, labels[idx(0, 1)])
}

func TestSelectComponents(t *testing.T) {
	lines, slices, samples := 4, 1, 1
	mask := []bool{true, false, true, true}
	labels := Label3D(mask, lines, slices, samples)

	// Seed at voxel 0 keeps only the first component.
	sel := SelectComponents(labels, 0)
	assert.Equal(t, []float64{1, 0, 0, 0}, sel)

	// Seeds at both ends keep both components.
	sel = SelectComponents(labels, 0, 3)
	assert.Equal(t, []float64{1, 0, 1, 1}, sel)

	// A background seed selects nothing.
	sel = SelectComponents(labels, 1)
	assert.Equal(t, []float64{0, 0, 0, 0}, sel)
}
