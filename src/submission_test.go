package retina

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteSubmission(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "submission.csv")
	err := WriteSubmission(path, []Prediction{
		{Image: "1_left", Level: 0},
		{Image: "1_right", Level: 3},
	})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image,level\n1_left,0\n1_right,3\n", string(data))

	// the header is written even without predictions
	require.NoError(t, WriteSubmission(path, nil))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "image,level\n", string(data))
}
