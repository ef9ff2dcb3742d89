package retina

import (
	"encoding/csv"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Sample is one labelled image. Unlabelled test images use label -1.
type Sample struct {
	Image string // file stem, e.g. "10_left"
	Path  string
	Label int
}

// ImageExts are the file extensions recognised as images
var ImageExts = []string{".jpeg", ".jpg", ".png"}

// ReadLabels parses an "image,level" CSV with a header row
func ReadLabels(path string, numClasses int) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "retina: failed to open labels %q", path)
	}
	defer f.Close()
	return parseLabels(f, path, numClasses)
}

func parseLabels(r io.Reader, path string, numClasses int) (map[string]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "retina: failed to read header of %q", path)
	}
	if header[0] != "image" || header[1] != "level" {
		return nil, errorf("%s: header must be image,level, got %s", path, strings.Join(header, ","))
	}

	labels := make(map[string]int)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "retina: failed to parse %q", path)
		}
		level, err := strconv.Atoi(rec[1])
		if err != nil {
			line, _ := cr.FieldPos(1)
			return nil, errors.Wrapf(err, "retina: %s:%d: bad level %q", path, line, rec[1])
		}
		if level < 0 || level >= numClasses {
			line, _ := cr.FieldPos(1)
			return nil, errorf("%s:%d: level %d out of range [0, %d)", path, line, level, numClasses)
		}
		labels[rec[0]] = level
	}
	return labels, nil
}

// Dataset is an ordered list of samples
type Dataset struct {
	Samples []Sample
}

// listImages maps file stems to paths for every image in dir
func listImages(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "retina: failed to list %q", dir)
	}
	files := make(map[string]string)
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || !slices.Contains(ImageExts, ext) {
			continue
		}
		files[strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))] = filepath.Join(dir, e.Name())
	}
	return files, nil
}

// NewTrainDataset pairs the label file with the images in TrainPath.
// Labelled images missing from the directory are skipped.
func NewTrainDataset(cfg DataConfig, numClasses int) (*Dataset, error) {
	labels, err := ReadLabels(cfg.LabelPath, numClasses)
	if err != nil {
		return nil, err
	}
	files, err := listImages(cfg.TrainPath)
	if err != nil {
		return nil, err
	}

	names := lo.Keys(labels)
	slices.Sort(names)
	ds := &Dataset{}
	missing := 0
	for _, name := range names {
		path, ok := files[name]
		if !ok {
			missing++
			continue
		}
		ds.Samples = append(ds.Samples, Sample{Image: name, Path: path, Label: labels[name]})
	}
	if missing > 0 {
		logger.Warn("labelled images not found", "dir", cfg.TrainPath, "missing", missing)
	}
	if len(ds.Samples) == 0 {
		return nil, errorf("no labelled images in %q", cfg.TrainPath)
	}
	return ds, nil
}

// NewTestDataset lists every image in TestPath in name order
func NewTestDataset(cfg DataConfig) (*Dataset, error) {
	files, err := listImages(cfg.TestPath)
	if err != nil {
		return nil, err
	}
	names := lo.Keys(files)
	slices.Sort(names)
	return &Dataset{
		Samples: lo.Map(names, func(name string, _ int) Sample {
			return Sample{Image: name, Path: files[name], Label: -1}
		}),
	}, nil
}

func (d *Dataset) Len() int { return len(d.Samples) }

// Labels returns the label of every sample
func (d *Dataset) Labels() []int {
	return lo.Map(d.Samples, func(s Sample, _ int) int { return s.Label })
}

// Split shuffles with seed and moves valFraction of the samples into a
// validation set. valFraction must be in [0, 1].
func (d *Dataset) Split(valFraction float64, seed int64) (*Dataset, *Dataset, error) {
	if math.IsNaN(valFraction) || valFraction < 0 || valFraction > 1 {
		return nil, nil, errorf("validation fraction %g out of range [0, 1]", valFraction)
	}
	idx := lo.Range(d.Len())
	shuffleInts(idx, rand.New(rand.NewSource(seed)))
	valSize := int(float64(d.Len()) * valFraction)
	trainSize := d.Len() - valSize

	pick := func(ii []int) *Dataset {
		return &Dataset{Samples: lo.Map(ii, func(i int, _ int) Sample { return d.Samples[i] })}
	}
	return pick(idx[:trainSize]), pick(idx[trainSize:]), nil
}

// decodeFile reads and decodes one image
func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "retina: failed to open image %q", path)
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "retina: failed to decode image %q", path)
	}
	return img, nil
}
