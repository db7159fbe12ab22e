package rdiff

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSignatureSuffix is appended to a basis filename to name its
// signature file.
const DefaultSignatureSuffix = ".sig"

type Filesystem interface {
	OpenRead(filename string) (io.ReadCloser, error)
	OpenWrite(filename string) (io.WriteCloser, error)
	Delete(filename string) error
	IsPath(filename string) bool
	IsDir(filename string) bool
	ListAll() ([]string, error)
}

type memoryFilesystem struct {
	storage map[string]*bytes.Buffer /// nil value marks a directory
}

/// NewMemoryFilesystem keeps everything in a map. It does not support
/// concurrent readers and writers of the same file and is meant for tests.
func NewMemoryFilesystem() *memoryFilesystem {
	return &memoryFilesystem{
		storage: make(map[string]*bytes.Buffer),
	}
}

func (mf *memoryFilesystem) OpenRead(filename string) (io.ReadCloser, error) {
	buf, ok := mf.storage[filename]
	if !ok {
		return nil, errors.New("file does not exist")
	}
	if buf == nil {
		return nil, errors.New("file is a directory")
	}
	return NopReadCloser(bytes.NewReader(buf.Bytes())), nil
}

func (mf *memoryFilesystem) OpenWrite(filename string) (io.WriteCloser, error) {
	buf, ok := mf.storage[filename]
	if ok && buf == nil {
		return nil, errors.New("file is a directory")
	}
	buf = &bytes.Buffer{}
	mf.storage[filename] = buf
	return NopWriteCloser(buf), nil
}

func (mf *memoryFilesystem) Delete(filename string) error {
	if _, ok := mf.storage[filename]; !ok {
		return errors.New("file does not exist")
	}
	delete(mf.storage, filename)
	return nil
}

func (mf *memoryFilesystem) Mkdir(filename string) error {
	if _, ok := mf.storage[filename]; ok {
		return errors.New("file already exists")
	}
	mf.storage[filename] = nil
	return nil
}

func (mf *memoryFilesystem) IsPath(filename string) bool {
	_, ok := mf.storage[filename]
	return ok
}

func (mf *memoryFilesystem) IsDir(filename string) bool {
	buf, ok := mf.storage[filename]
	return ok && buf == nil
}

func (mf *memoryFilesystem) ListAll() ([]string, error) {
	filenames := make([]string, 0, len(mf.storage))
	for filename := range mf.storage {
		filenames = append(filenames, filename)
	}
	sort.Strings(filenames)
	return filenames, nil
}

type actualFilesystem struct {
	prefix string
}

func NewActualFilesystem(prefix string) *actualFilesystem {
	return &actualFilesystem{
		prefix: prefix,
	}
}

func (af *actualFilesystem) prefixed(filename string) string {
	return filepath.Join(af.prefix, filename)
}

func (af *actualFilesystem) unprefixed(filename string) string {
	rel, err := filepath.Rel(af.prefix, filename)
	if err != nil {
		return filename
	}
	return rel
}

func (af *actualFilesystem) OpenRead(filename string) (io.ReadCloser, error) {
	return os.Open(af.prefixed(filename))
}

func (af *actualFilesystem) OpenWrite(filename string) (io.WriteCloser, error) {
	if err := os.MkdirAll(
		filepath.Dir(af.prefixed(filename)),
		os.ModeDir|0755,
	); err != nil {
		return nil, err
	}
	return os.Create(af.prefixed(filename))
}

func (af *actualFilesystem) Delete(filename string) error {
	return os.Remove(af.prefixed(filename))
}

func (af *actualFilesystem) IsPath(filename string) bool {
	if _, err := os.Stat(af.prefixed(filename)); os.IsNotExist(err) {
		return false
	}
	return true
}

func (af *actualFilesystem) IsDir(filename string) bool {
	stat, err := os.Stat(af.prefixed(filename))
	return (err == nil) && stat.IsDir()
}

func (af *actualFilesystem) ListAll() ([]string, error) {
	filenames := make([]string, 0)
	root := af.prefixed(".")
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != root {
			filenames = append(filenames, af.unprefixed(path))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(filenames)
	return filenames, nil
}

// SignFile writes the signature of filename into sigFilename.
func SignFile(
	fs Filesystem,
	generator *SignatureGenerator,
	filename string,
	sigFilename string,
) (err error) {
	r, err := fs.OpenRead(filename)
	if err != nil {
		return errors.Wrapf(err, "cannot open %v", filename)
	}
	defer r.Close()

	w, err := fs.OpenWrite(sigFilename)
	if err != nil {
		return errors.Wrapf(err, "cannot create %v", sigFilename)
	}
	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = errors.Wrapf(cerr, "cannot close %v", sigFilename)
		}
	}()

	if err := generator.Generate(r, w); err != nil {
		return errors.Wrapf(err, "cannot sign %v", filename)
	}
	return nil
}

/// SignAll writes filename+suffix for every regular file in fs that is not
/// itself a signature. It returns the basis filenames it signed.
func SignAll(fs Filesystem, generator *SignatureGenerator, suffix string) ([]string, error) {
	if suffix == "" {
		return nil, errors.New("signature suffix must not be empty")
	}
	filenames, err := fs.ListAll()
	if err != nil {
		return nil, errors.Wrap(err, "cannot list filesystem")
	}

	signed := make([]string, 0, len(filenames))
	for _, filename := range filenames {
		if fs.IsDir(filename) || strings.HasSuffix(filename, suffix) {
			continue
		}
		if err := SignFile(fs, generator, filename, filename+suffix); err != nil {
			return signed, err
		}
		signed = append(signed, filename)
	}
	return signed, nil
}

/// PruneSignatures deletes every filename+suffix whose basis filename no
/// longer exists, e.g. after an editor renamed its temporary file away.
/// It returns the signature filenames it deleted.
func PruneSignatures(fs Filesystem, suffix string) ([]string, error) {
	if suffix == "" {
		return nil, errors.New("signature suffix must not be empty")
	}
	filenames, err := fs.ListAll()
	if err != nil {
		return nil, errors.Wrap(err, "cannot list filesystem")
	}

	pruned := make([]string, 0)
	for _, filename := range filenames {
		if !strings.HasSuffix(filename, suffix) || fs.IsDir(filename) {
			continue
		}
		if fs.IsPath(strings.TrimSuffix(filename, suffix)) {
			continue
		}
		if err := fs.Delete(filename); err != nil {
			return pruned, errors.Wrapf(err, "cannot delete %v", filename)
		}
		pruned = append(pruned, filename)
	}
	return pruned, nil
}
