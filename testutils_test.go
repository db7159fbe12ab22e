package rdiff

import (
	"io/ioutil"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type File struct {
	Filename string
	IsDir    bool
	Content  string
}

func makeFilesystem(files []File) *memoryFilesystem {
	fs := NewMemoryFilesystem()
	for _, file := range files {
		if file.IsDir {
			_ = fs.Mkdir(file.Filename)
		} else {
			w, _ := fs.OpenWrite(file.Filename)
			_, _ = w.Write([]byte(file.Content))
			_ = w.Close()
		}
	}
	return fs
}

func readFile(t *testing.T, fs Filesystem, filename string) []byte {
	r, err := fs.OpenRead(filename)
	require.NoError(t, err)
	defer r.Close()
	content, err := ioutil.ReadAll(r)
	require.NoError(t, err)
	return content
}

// assertSignatureOf checks that sigFilename holds the signature of
// filename's current content.
func assertSignatureOf(
	t *testing.T,
	fs Filesystem,
	options SignatureOptions,
	filename string,
	sigFilename string,
) {
	content := generateOnBytes(t, readFile(t, fs, filename), options)
	assert.Equal(t, content, readFile(t, fs, sigFilename), "signature of %v", filename)
}
