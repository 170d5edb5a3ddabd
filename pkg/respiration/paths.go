package respiration

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Paths supplies destination paths for every pipeline artifact rooted at one
// output directory. Edit here rather than scattering literals through stages.
type Paths struct {
	root string
}

// NewPaths creates the output directory tree.
func NewPaths(root string) (*Paths, error) {
	for _, dir := range []string{root, filepath.Join(root, "volumes"), filepath.Join(root, "figures")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create output directory %s", dir)
		}
	}
	return &Paths{root: root}, nil
}

// Root returns the output root directory.
func (p *Paths) Root() string { return p.root }

// Cropped is the PNG-stack directory for the auto-cropped source volume.
func (p *Paths) Cropped() string {
	return filepath.Join(p.root, "volumes", "cropped")
}

// InitializedContours is the PNG-stack directory for the initial mask.
func (p *Paths) InitializedContours() string {
	return filepath.Join(p.root, "volumes", "contours_initialised")
}

// FilteredContours is the PNG-stack directory for the denoised edge-map
// volume.
func (p *Paths) FilteredContours() string {
	return filepath.Join(p.root, "volumes", "contours_filtered")
}

// RefinedContours is the PNG-stack directory for the refined mask.
func (p *Paths) RefinedContours() string {
	return filepath.Join(p.root, "volumes", "contours_refined")
}

// TraceTSV is the path of the raw/trend/residual table.
func (p *Paths) TraceTSV() string {
	return filepath.Join(p.root, "respiration_trace.tsv")
}

// FrequencyFigure is the path of the crop-detector diagnostic plot.
func (p *Paths) FrequencyFigure() string {
	return filepath.Join(p.root, "figures", "frequency_matrix.png")
}

// TraceFigure is the path of the trace diagnostic plot.
func (p *Paths) TraceFigure() string {
	return filepath.Join(p.root, "figures", "respiration_trace.png")
}
