package rdiff

import "io"

// A source that keeps returning (0, nil) is treated as broken rather than
// as exhausted, the same limit bufio uses.
const maxConsecutiveEmptyReads = 100

// fillBuffer reads from r until buf is full or r reports io.EOF. It
// returns the number of bytes read; io.EOF itself is not an error here.
// Short reads are normal and are simply retried.
func fillBuffer(r io.Reader, buf []byte) (int, error) {
	filled, empty := 0, 0
	for filled < len(buf) {
		n, err := r.Read(buf[filled:])
		filled += n
		if err == io.EOF {
			return filled, nil
		}
		if err != nil {
			return filled, err
		}
		if n > 0 {
			empty = 0
			continue
		}
		empty++
		if empty >= maxConsecutiveEmptyReads {
			return filled, io.ErrNoProgress
		}
	}
	return filled, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

type nopReadCloser struct {
	io.Reader
}

func (nopReadCloser) Close() error { return nil }

func NopReadCloser(r io.Reader) io.ReadCloser {
	return nopReadCloser{r}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

func NopWriteCloser(w io.Writer) io.WriteCloser {
	return nopWriteCloser{w}
}
