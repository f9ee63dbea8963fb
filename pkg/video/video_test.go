package video

import (
	"bytes"
	"go/parser"
	"go/token"
	"image/jpeg"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthetic(t *testing.T) {
	s, err := NewSynthetic(3, 25)
	require.NoError(t, err)
	assert.Equal(t, 25.0, s.FPS())

	for i := 0; i < 3; i++ {
		frame, err := s.Next()
		require.NoError(t, err)

		img, err := jpeg.Decode(bytes.NewReader(frame))
		require.NoError(t, err, "frame %d is a JPEG", i)
		assert.Equal(t, 64, img.Bounds().Dx())
	}

	_, err = s.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSynthetic_Endless(t *testing.T) {
	s, err := NewSynthetic(-1, 30)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		_, err := s.Next()
		require.NoError(t, err)
	}
	require.NoError(t, s.Close())
	_, err = s.Next()
	assert.ErrorIs(t, err, ErrClosed)
}

// Replay runs and the packages downstream of Source must build without
// OpenCV, so this package may not import it.
func TestPackageIsCgoFree(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	fset := token.NewFileSet()
	for _, name := range files {
		f, err := parser.ParseFile(fset, name, nil, parser.ImportsOnly)
		require.NoError(t, err, name)
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			require.NoError(t, err)
			assert.NotEqual(t, "C", path, name)
			assert.False(t, strings.HasPrefix(path, "gocv.io/"), "%s imports %s", name, path)
		}
	}
}
