package volume

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadNIfTIMissingFile(t *testing.T) {
	_, err := LoadNIfTI(filepath.Join(t.TempDir(), "absent.nii.gz"), 1.0)
	if err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoadNIfTITruncatedFile(t *testing.T) {
	// A panic inside the parser must surface as an error, not crash.
	path := filepath.Join(t.TempDir(), "truncated.nii")
	if err := os.WriteFile(path, []byte("not a nifti header"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadNIfTI(path, 1.0)
	if err == nil {
		t.Fatal("truncated file accepted")
	}
}
