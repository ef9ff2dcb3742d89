package retina

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// WriteSubmission writes predictions as an "image,level" CSV
func WriteSubmission(path string, preds []Prediction) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "retina: failed to create dir for %q", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "retina: failed to create submission %q", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"image", "level"}); err != nil {
		return errors.Wrap(err, "retina: failed to write submission header")
	}
	for _, p := range preds {
		if err := w.Write([]string{p.Image, strconv.Itoa(p.Level)}); err != nil {
			return errors.Wrapf(err, "retina: failed to write prediction for %q", p.Image)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrapf(err, "retina: failed to flush submission %q", path)
	}
	return f.Close()
}
