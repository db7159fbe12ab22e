package rdiff

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrBadMagic           = errors.New("not a signature stream")
	ErrTruncatedSignature = errors.New("truncated signature stream")
)

/// Signature is a parsed signature stream. Blocks[i] describes the block
/// starting at offset i*BlockLen of the basis; the last block may be
/// shorter than BlockLen.
type Signature struct {
	Options SignatureOptions
	Blocks  []BlockSignature
}

func (s *Signature) Len() int { return len(s.Blocks) }

// BlockOffset is the offset in the basis of block i.
func (s *Signature) BlockOffset(i int) int64 {
	return int64(i) * int64(s.Options.BlockLen)
}

// Matches reports whether block has the digests recorded for block i.
func (s *Signature) Matches(block []byte, i int) bool {
	if i < 0 || i >= len(s.Blocks) {
		return false
	}
	strong := StrongSum(block)
	return s.Blocks[i].Equal(BlockSignature{
		Weak:   WindowDigest(block),
		Strong: strong[:s.Options.StrongLen],
	})
}

/// Verify reads basis block by block and returns the indices of the blocks
/// that do not match the signature. Blocks missing from either side count
/// as mismatches. It allocates one BlockLen buffer, so callers reading
/// untrusted signatures should bound Options.BlockLen first.
func (s *Signature) Verify(basis io.Reader) ([]int, error) {
	mismatches := make([]int, 0)
	buffer := make([]byte, s.Options.BlockLen)
	i := 0
	for {
		n, err := fillBuffer(basis, buffer)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		if !s.Matches(buffer[:n], i) {
			mismatches = append(mismatches, i)
		}
		i++
		if n < len(buffer) {
			break
		}
	}
	for ; i < len(s.Blocks); i++ {
		mismatches = append(mismatches, i)
	}
	return mismatches, nil
}

// WriteTo serializes the signature in the wire format.
func (s *Signature) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriter(cw)
	if err := writeHeader(bw, s.Options); err != nil {
		return cw.n, err
	}
	for i, block := range s.Blocks {
		if len(block.Strong) != int(s.Options.StrongLen) {
			return cw.n, errors.Errorf(
				"block %d: strong sum is %d bytes, want %d",
				i, len(block.Strong), s.Options.StrongLen,
			)
		}
		if err := writeUint32(bw, block.Weak); err != nil {
			return cw.n, err
		}
		if _, err := bw.Write(block.Strong); err != nil {
			return cw.n, err
		}
	}
	err := bw.Flush()
	return cw.n, err
}

/// ReadSignature parses a signature stream. The stream must end on a
/// record boundary; anything else is reported as ErrTruncatedSignature.
func ReadSignature(r io.Reader) (*Signature, error) {
	var header [headerLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(ErrTruncatedSignature, "reading header")
		}
		return nil, errors.Wrap(err, "cannot read signature header")
	}

	options := SignatureOptions{
		Magic:     SignatureFormat(binary.BigEndian.Uint32(header[0:4])),
		BlockLen:  binary.BigEndian.Uint32(header[4:8]),
		StrongLen: binary.BigEndian.Uint32(header[8:12]),
	}
	if !options.Magic.Known() {
		return nil, errors.Wrapf(ErrBadMagic, "magic %#08x", uint32(options.Magic))
	}
	if err := options.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid signature header")
	}

	sig := &Signature{
		Options: options,
		Blocks:  make([]BlockSignature, 0),
	}
	record := make([]byte, options.RecordLen())
	for {
		_, err := io.ReadFull(r, record)
		if err == io.EOF {
			break
		}
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrTruncatedSignature, "record %d", len(sig.Blocks))
		}
		if err != nil {
			return nil, errors.Wrapf(err, "cannot read record %d", len(sig.Blocks))
		}
		sig.Blocks = append(sig.Blocks, NewBlockSignature(
			binary.BigEndian.Uint32(record[:weakLen]),
			record[weakLen:],
		))
	}
	return sig, nil
}
