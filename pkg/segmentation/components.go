package segmentation

import (
	"github.com/theodesp/unionfind"
)

// Label3D labels the foreground voxels of a boolean volume (lines x slices x
// samples, row-major) into connected components under face adjacency
// (6-connectivity). Background voxels get label 0; foreground labels are
// positive and stable for a given input. Two-pass union-find labeling.
func Label3D(mask []bool, lines, slices, samples int) []int32 {
	labels := make([]int32, len(mask))
	if lines*slices*samples != len(mask) {
		return labels
	}

	uf := unionfind.NewThreadSafeUnionFind(len(mask) + 1)

	idx := func(ln, sl, sm int) int {
		return (ln*slices+sl)*samples + sm
	}

	var next int32 = 1
	for ln := 0; ln < lines; ln++ {
		for sl := 0; sl < slices; sl++ {
			for sm := 0; sm < samples; sm++ {
				i := idx(ln, sl, sm)
				if !mask[i] {
					continue
				}

				// Previously visited face neighbors.
				var neighbors [3]int32
				count := 0
				if ln > 0 && mask[idx(ln-1, sl, sm)] {
					neighbors[count] = labels[idx(ln-1, sl, sm)]
					count++
				}
				if sl > 0 && mask[idx(ln, sl-1, sm)] {
					neighbors[count] = labels[idx(ln, sl-1, sm)]
					count++
				}
				if sm > 0 && mask[i-1] {
					neighbors[count] = labels[i-1]
					count++
				}

				if count == 0 {
					labels[i] = next
					next++
					continue
				}

				lowest := neighbors[0]
				for _, nb := range neighbors[1:count] {
					if nb < lowest {
						lowest = nb
					}
				}
				labels[i] = lowest
				for _, nb := range neighbors[:count] {
					if nb != lowest {
						uf.Union(int(lowest), int(nb))
					}
				}
			}
		}
	}

	// Second pass: resolve provisional labels to their component roots.
	resolved := make(map[int32]int32)
	for i, v := range labels {
		if v == 0 {
			continue
		}
		root, ok := resolved[v]
		if !ok {
			if r := uf.Root(int(v)); r > 0 {
				root = int32(r)
			} else {
				root = v
			}
			resolved[v] = root
		}
		labels[i] = root
	}

	return labels
}

// SelectComponents returns a binary volume (1.0 where selected) containing the
// union of every component whose label matches the label at one of the seed
// indices. Seeds on background voxels select nothing.
func SelectComponents(labels []int32, seeds ...int) []float64 {
	wanted := make(map[int32]struct{}, len(seeds))
	for _, s := range seeds {
		if s < 0 || s >= len(labels) {
			continue
		}
		if l := labels[s]; l != 0 {
			wanted[l] = struct{}{}
		}
	}

	out := make([]float64, len(labels))
	if len(wanted) == 0 {
		return out
	}
	for i, l := range labels {
		if l == 0 {
			continue
		}
		if _, ok := wanted[l]; ok {
			out[i] = 1
		}
	}
	return out
}
