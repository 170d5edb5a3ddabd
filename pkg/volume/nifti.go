package volume

import (
	"fmt"

	"github.com/henghuang/nifti"
	"github.com/pkg/errors"
)

// LoadNIfTI reads a .nii or .nii.gz file into a Volume. NIfTI x maps to the
// line axis, y to the slice axis and z to the sample axis; only the first
// timepoint is read. The sample-axis sampling frequency is derived from the
// header z spacing when it is usable, otherwise fallbackFs is used. A
// non-positive frequency from both sources is an error, since the crop
// detector cannot form a frequency axis without one.
func LoadNIfTI(path string, fallbackFs float64) (*Volume, error) {
	img, err := safelyParseImage(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parse nifti image %s", path)
	}
	hdr, err := safelyParseHeader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "parse nifti header %s", path)
	}

	dims := img.GetDims()
	lines, slices, samples := dims[0], dims[1], dims[2]
	if lines < 2 || slices < 1 || samples < 2 {
		return nil, errors.Errorf("degenerate nifti dimensions %dx%dx%d in %s", lines, slices, samples, path)
	}

	fs := fallbackFs
	if spacing := float64(hdr.Pixdim[3]); spacing > 0 {
		fs = 1.0 / spacing
	}
	if fs <= 0 {
		return nil, errors.Errorf("no usable sampling frequency for %s (header z spacing %g)", path, hdr.Pixdim[3])
	}

	out := New(lines, slices, samples, fs)
	for ln := 0; ln < lines; ln++ {
		for sl := 0; sl < slices; sl++ {
			for sm := 0; sm < samples; sm++ {
				out.Set(ln, sl, sm, float64(img.GetAt(ln, sl, sm, 0)))
			}
		}
	}

	return out, nil
}

// safelyParseImage consumes panics emitted by the nifti library so they can be
// handled as recoverable errors.
func safelyParseImage(path string) (parsed nifti.Nifti1Image, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsed.LoadImage(path, true)

	return
}

// safelyParseHeader consumes panics emitted by the nifti library so they can
// be handled as recoverable errors.
func safelyParseHeader(path string) (parsed nifti.Nifti1Header, err error) {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			err = fmt.Errorf("%v", panicErr)
		}
	}()

	parsed.LoadHeader(path)

	return
}
