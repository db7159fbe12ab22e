package rdiff

import (
	"hash"
)

// charOffset is added to every byte value so that runs of zero bytes
// still move the checksum.
const charOffset = 31

/// Window is the rolling checksum state used by rsync-style signatures.
/// It summarizes the bytes currently inside a logical window and can be
/// updated one byte at a time as the window slides. All arithmetic is
/// done on uint16 and wraps on overflow, so digests are identical on
/// every platform.
///
/// Window is a plain value; copy it freely.
type Window struct {
	count uint16 // number of bytes represented (mod 2^16)
	s1    uint16 // sum of bytes plus offsets
	s2    uint16 // sum of prefix sums plus offsets
}

// NewWindow returns the zero state.
func NewWindow() Window { return Window{} }

// Update adds the checksum of buf to the current state. It does not reset:
// feeding A then B gives the same result as feeding A+B once. Start from a
// zero Window (or use WindowDigest) to checksum a single block.
func (w *Window) Update(buf []byte) {
	s1, s2 := w.s1, w.s2
	for _, c := range buf {
		s1 += uint16(c)
		s2 += s1
	}

	n := uint64(len(buf))
	s1 += uint16(n) * charOffset
	s2 += uint16(n*(n+1)/2) * charOffset

	w.count += uint16(n)
	w.s1 = s1
	w.s2 = s2
}

// RollIn appends one byte to the tail of the window.
func (w *Window) RollIn(in byte) {
	w.s1 += uint16(in) + charOffset
	w.s2 += w.s1
	w.count++
}

// RollOut removes one byte from the head of the window. out must be the
// oldest byte still represented; this is not checked.
func (w *Window) RollOut(out byte) {
	c := uint16(out) + charOffset
	w.s1 -= c
	w.s2 -= w.count * c
	w.count--
}

// Rotate slides a fixed-size window by one byte: out leaves the head and
// in enters the tail. The count is unchanged.
func (w *Window) Rotate(out, in byte) {
	w.s1 += uint16(in) - uint16(out)
	w.s2 += w.s1 - w.count*(uint16(out)+charOffset)
}

// Digest packs s2 into the high and s1 into the low 16 bits.
func (w Window) Digest() uint32 {
	return uint32(w.s2)<<16 | uint32(w.s1)
}

// Count returns the number of bytes in the window, modulo 2^16.
func (w Window) Count() int { return int(w.count) }

// WindowDigest is the weak checksum of buf computed from a zero state.
func WindowDigest(buf []byte) uint32 {
	w := NewWindow()
	w.Update(buf)
	return w.Digest()
}

// --- Sliding hash.Hash32 ------------------------------------------

const rollingHashSize = 4

type rollingHash struct {
	window   Window
	blockLen int    // width of the sliding window
	circle   []byte // circular buffer holding the bytes in the window
	index    int    // next position to overwrite in circle
	filled   int    // bytes in circle, saturates at blockLen
}

/// NewRollingHash returns a hash.Hash32 over the last blockLen bytes
/// written to it. Each written byte is rolled in until the window is full,
/// after that every byte rotates the oldest one out. Sum32 always equals
/// WindowDigest of the trailing blockLen bytes (or of everything written,
/// if that is shorter).
func NewRollingHash(blockLen int) hash.Hash32 {
	if blockLen <= 0 {
		panic("rdiff: rolling hash block length must be positive")
	}
	return &rollingHash{
		blockLen: blockLen,
		circle:   make([]byte, blockLen),
	}
}

func (rh *rollingHash) Reset() {
	rh.window = NewWindow()
	rh.index = 0
	rh.filled = 0
}

func (rh *rollingHash) Size() int { return rollingHashSize }

func (rh *rollingHash) BlockSize() int { return rh.blockLen }

func (rh *rollingHash) Write(p []byte) (int, error) {
	for _, c := range p {
		if rh.filled < rh.blockLen {
			rh.window.RollIn(c)
			rh.filled++
		} else {
			rh.window.Rotate(rh.circle[rh.index], c)
		}
		rh.circle[rh.index] = c
		rh.index = (rh.index + 1) % rh.blockLen
	}
	return len(p), nil
}

func (rh *rollingHash) Sum32() uint32 { return rh.window.Digest() }

func (rh *rollingHash) Sum(in []byte) []byte {
	s := rh.Sum32()
	return append(in, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
}
