package rdiff

import (
	"fmt"

	"github.com/pkg/errors"
)

/// SignatureFormat is the magic number at the start of a signature
/// stream. It names the strong hash the signature was built with.
type SignatureFormat uint32

const (
	// Blake2SigMagic marks a signature whose strong sums are BLAKE2b.
	Blake2SigMagic SignatureFormat = 0x72730137
)

const (
	DefaultBlockLen    = 2048
	MaxStrongSumLength = 32

	headerLen = 12
	weakLen   = 4
)

var (
	ErrInvalidBlockLen   = errors.New("block length must be positive")
	ErrStrongLenTooLarge = errors.Errorf("strong sum length exceeds %d bytes", MaxStrongSumLength)
	ErrUnknownMagic      = errors.New("unknown signature format")
)

func (f SignatureFormat) String() string {
	switch f {
	case Blake2SigMagic:
		return "blake2"
	}
	return fmt.Sprintf("SignatureFormat(%#08x)", uint32(f))
}

// Known reports whether f is a format this package can produce.
func (f SignatureFormat) Known() bool {
	return f == Blake2SigMagic
}

/// SignatureOptions configures signature generation. It is a value type;
/// the With* methods return modified copies.
type SignatureOptions struct {
	Magic     SignatureFormat
	BlockLen  uint32 // bytes per block
	StrongLen uint32 // strong sum bytes kept per block, at most MaxStrongSumLength
}

func DefaultSignatureOptions() SignatureOptions {
	return SignatureOptions{
		Magic:     Blake2SigMagic,
		BlockLen:  DefaultBlockLen,
		StrongLen: MaxStrongSumLength,
	}
}

func (o SignatureOptions) WithBlockLen(n uint32) SignatureOptions {
	o.BlockLen = n
	return o
}

// WithStrongLen sets how many strong sum bytes are kept. Shorter sums make
// smaller signatures at the cost of collision resistance.
func (o SignatureOptions) WithStrongLen(n uint32) SignatureOptions {
	o.StrongLen = n
	return o
}

// Validate checks the options before any I/O happens.
func (o SignatureOptions) Validate() error {
	if !o.Magic.Known() {
		return errors.Wrapf(ErrUnknownMagic, "magic %#08x", uint32(o.Magic))
	}
	if o.BlockLen == 0 {
		return ErrInvalidBlockLen
	}
	if o.StrongLen > MaxStrongSumLength {
		return errors.Wrapf(ErrStrongLenTooLarge, "strong length %d", o.StrongLen)
	}
	return nil
}

// RecordLen is the size of one serialized block record.
func (o SignatureOptions) RecordLen() int {
	return weakLen + int(o.StrongLen)
}
