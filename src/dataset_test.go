package retina

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLabels(t *testing.T) {
	labels, err := parseLabels(strings.NewReader("image,level\n10_left,0\n10_right, 4\n13_left,2\n"), "labels.csv", 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"10_left": 0, "10_right": 4, "13_left": 2}, labels)
}

func TestParseLabelsErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "header"},
		{"bad_header", "name,grade\na,1\n", "header must be image,level"},
		{"bad_level", "image,level\na,x\n", "labels.csv:2: bad level"},
		{"out_of_range", "image,level\na,1\nb,5\n", "labels.csv:3: level 5 out of range"},
		{"negative", "image,level\na,-1\n", "out of range"},
		{"extra_field", "image,level\na,1,2\n", "failed to parse"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseLabels(strings.NewReader(tc.input), "labels.csv", 5)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

// writeDataset creates train and test directories of tiny images plus a
// label file. Returns the data config pointing at them.
func writeDataset(t *testing.T, labels map[string]int, testNames ...string) DataConfig {
	t.Helper()
	dir := t.TempDir()
	trainDir := filepath.Join(dir, "train")
	testDir := filepath.Join(dir, "test")
	require.NoError(t, os.MkdirAll(trainDir, 0755))
	require.NoError(t, os.MkdirAll(testDir, 0755))

	var csv strings.Builder
	csv.WriteString("image,level\n")
	for name, level := range labels {
		csv.WriteString(name + "," + string(rune('0'+level)) + "\n")
		shade := uint8(40 + 50*level)
		writeTestPNG(t, trainDir, name+".png", newTestImage(12, 12, solid(colorOf(shade))))
	}
	for _, name := range testNames {
		writeTestPNG(t, testDir, name+".png", newTestImage(12, 12, gradient))
	}
	labelPath := filepath.Join(dir, "trainLabels.csv")
	require.NoError(t, os.WriteFile(labelPath, []byte(csv.String()), 0644))

	cfg := DefaultConfig().Data
	cfg.TrainPath = trainDir
	cfg.TestPath = testDir
	cfg.LabelPath = labelPath
	cfg.SubmissionFile = filepath.Join(dir, "out", "submission.csv")
	cfg.BatchSize = 4
	cfg.NumLoadingWorkers = 2
	return cfg
}

func TestNewTrainDataset(t *testing.T) {
	cfg := writeDataset(t, map[string]int{"1_left": 0, "1_right": 2, "2_left": 1})

	// a labelled image without a file is skipped, a stray file is ignored
	f, err := os.OpenFile(cfg.LabelPath, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("9_left,3\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	writeTestPNG(t, cfg.TrainPath, "stray.png", newTestImage(2, 2, gradient))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.TrainPath, "notes.txt"), []byte("x"), 0644))

	ds, err := NewTrainDataset(cfg, 5)
	require.NoError(t, err)
	require.Equal(t, 3, ds.Len())
	assert.Equal(t, Sample{Image: "1_left", Path: filepath.Join(cfg.TrainPath, "1_left.png"), Label: 0}, ds.Samples[0])
	assert.Equal(t, []int{0, 2, 1}, ds.Labels())
}

func TestNewTrainDatasetErrors(t *testing.T) {
	cfg := writeDataset(t, map[string]int{"1_left": 0})

	missing := cfg
	missing.LabelPath = filepath.Join(t.TempDir(), "none.csv")
	_, err := NewTrainDataset(missing, 5)
	assert.ErrorContains(t, err, "failed to open labels")

	empty := cfg
	empty.TrainPath = cfg.TestPath
	_, err = NewTrainDataset(empty, 5)
	assert.ErrorContains(t, err, "no labelled images")

	_, err = NewTrainDataset(cfg, 0)
	assert.ErrorContains(t, err, "out of range")
}

func TestNewTestDataset(t *testing.T) {
	cfg := writeDataset(t, map[string]int{"1_left": 0}, "7_right", "3_left")
	ds, err := NewTestDataset(cfg)
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "3_left", ds.Samples[0].Image)
	assert.Equal(t, []int{-1, -1}, ds.Labels())
}

func TestDatasetSplit(t *testing.T) {
	ds := &Dataset{}
	for i := range 10 {
		ds.Samples = append(ds.Samples, Sample{Image: string(rune('a' + i)), Label: i % 5})
	}

	train, val, err := ds.Split(0.2, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, val.Len())
	assert.ElementsMatch(t, ds.Samples, append(train.Samples, val.Samples...))

	again, _, err := ds.Split(0.2, 1)
	require.NoError(t, err)
	assert.Equal(t, train.Samples, again.Samples)

	all, none, err := ds.Split(0, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, all.Len())
	assert.Zero(t, none.Len())

	none, all, err = ds.Split(1, 1)
	require.NoError(t, err)
	assert.Zero(t, none.Len())
	assert.Equal(t, 10, all.Len())
}

func TestDatasetSplitRejectsBadFraction(t *testing.T) {
	ds := &Dataset{Samples: []Sample{{Image: "a"}, {Image: "b"}, {Image: "c"}}}
	for _, frac := range []float64{1.5, -0.5, math.NaN()} {
		t.Run(fmt.Sprint(frac), func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { _, _, err = ds.Split(frac, 1) })
			assert.ErrorContains(t, err, "out of range [0, 1]")
		})
	}
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPNG(t, dir, "a.png", newTestImage(3, 2, gradient))
	img, err := decodeFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())

	bad := filepath.Join(dir, "b.png")
	require.NoError(t, os.WriteFile(bad, []byte("not a png"), 0644))
	_, err = decodeFile(bad)
	assert.ErrorContains(t, err, "failed to decode")
}
