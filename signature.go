package rdiff

import (
	"bufio"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/blake2b"
)

/// SignatureGenerator splits its input into fixed-size blocks and emits
/// a weak rolling checksum and a truncated strong sum for each of them.
/// It reuses one block buffer between calls, so a generator must not be
/// used from several goroutines at once.
type SignatureGenerator struct {
	options SignatureOptions
	buffer  []byte
}

// NewSignatureGenerator validates options and allocates the block buffer.
func NewSignatureGenerator(options SignatureOptions) (*SignatureGenerator, error) {
	if err := options.Validate(); err != nil {
		return nil, err
	}
	return &SignatureGenerator{
		options: options,
		buffer:  make([]byte, options.BlockLen),
	}, nil
}

func (sg *SignatureGenerator) Options() SignatureOptions { return sg.options }

// StrongSum is the full 32-byte BLAKE2b digest of block. Signatures keep
// a prefix of it.
func StrongSum(block []byte) [MaxStrongSumLength]byte {
	return blake2b.Sum256(block)
}

// forEachBlock reads r block by block and calls fn with the weak digest and
// the truncated strong sum. strong is only valid until fn returns.
func (sg *SignatureGenerator) forEachBlock(
	r io.Reader,
	fn func(weak uint32, strong []byte) error,
) error {
	for {
		n, err := fillBuffer(r, sg.buffer)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		block := sg.buffer[:n]
		strong := StrongSum(block)
		if err := fn(WindowDigest(block), strong[:sg.options.StrongLen]); err != nil {
			return err
		}

		// a short block can only be the last one
		if n < len(sg.buffer) {
			return nil
		}
	}
}

/// Generate writes the signature of r to w: a 12-byte header followed by
/// one record per block, in input order. Read and write errors are
/// returned as is; after an error the output is truncated and should be
/// discarded.
func (sg *SignatureGenerator) Generate(r io.Reader, w io.Writer) error {
	bw := bufio.NewWriter(w)
	if err := writeHeader(bw, sg.options); err != nil {
		return err
	}

	err := sg.forEachBlock(r, func(weak uint32, strong []byte) error {
		if err := writeUint32(bw, weak); err != nil {
			return err
		}
		_, err := bw.Write(strong)
		return err
	})
	if err != nil {
		return err
	}
	return bw.Flush()
}

// Scan computes the signature of r in memory.
func (sg *SignatureGenerator) Scan(r io.Reader) (*Signature, error) {
	sig := &Signature{
		Options: sg.options,
		Blocks:  make([]BlockSignature, 0),
	}
	err := sg.forEachBlock(r, func(weak uint32, strong []byte) error {
		sig.Blocks = append(sig.Blocks, NewBlockSignature(weak, strong))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sig, nil
}

// GenerateSignature writes the signature of r to w using options.
// Invalid options are reported before anything is read or written.
func GenerateSignature(r io.Reader, options SignatureOptions, w io.Writer) error {
	sg, err := NewSignatureGenerator(options)
	if err != nil {
		return err
	}
	return sg.Generate(r, w)
}

func writeHeader(w io.Writer, options SignatureOptions) error {
	var header [headerLen]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(options.Magic))
	binary.BigEndian.PutUint32(header[4:8], options.BlockLen)
	binary.BigEndian.PutUint32(header[8:12], options.StrongLen)
	_, err := w.Write(header[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}
